package config

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/oscweb/pkg/oscweb/osc"
	"github.com/tsarna/oscweb/pkg/oscweb/transform"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap/zaptest"
)

func build(t *testing.T, sources ...any) (*Config, hcl.Diagnostics) {
	t.Helper()
	return NewConfig().WithLogger(zaptest.NewLogger(t)).WithSources(sources...).Build()
}

func mustBuild(t *testing.T, sources ...any) *Config {
	t.Helper()
	config, diags := build(t, sources...)
	require.False(t, diags.HasErrors(), "unexpected diagnostics: %s", diags)
	return config
}

func TestBuildFullConfig(t *testing.T) {
	config := mustBuild(t, "testdata/full.hcl")

	require.NotNil(t, config.OSC)
	assert.Equal(t, "127.0.0.1:4002", *config.OSC.Listen)
	assert.Equal(t, "127.0.0.1:4000", *config.OSC.Peer)
	assert.Equal(t, "/oscweb/clients", *config.OSC.ClientCountAddress)

	require.NotNil(t, config.WebSocket)
	assert.Equal(t, "127.0.0.1:8002", *config.WebSocket.Listen)
	assert.Equal(t, "/ws", *config.WebSocket.Path)
	assert.Equal(t, 64, *config.WebSocket.QueueSize)
	assert.Equal(t, int64(65536), *config.WebSocket.ReadLimit)
	assert.Equal(t, []string{"localhost:*"}, config.WebSocket.OriginPatterns)

	pingInterval, diags := config.ParseDuration(config.WebSocket.PingInterval)
	require.False(t, diags.HasErrors())
	assert.Equal(t, 15*time.Second, pingInterval)

	require.NotNil(t, config.Inbound)
	assert.Equal(t, []string{"/debug/#"}, config.Inbound.DropAddresses)

	require.Len(t, config.Static, 2)
	require.Len(t, config.Heartbeats, 1)
	assert.Equal(t, "/oscweb/alive", config.Heartbeats[0].Address)

	sc, diags := config.ServerConfig()
	require.False(t, diags.HasErrors(), "unexpected diagnostics: %s", diags)
	assert.NoError(t, sc.IsValid())
}

func TestBuildEmptyConfig(t *testing.T) {
	config := mustBuild(t)
	assert.Nil(t, config.OSC)
	assert.Nil(t, config.WebSocket)

	sc, diags := config.ServerConfig()
	require.False(t, diags.HasErrors())
	_, err := sc.Build()
	assert.NoError(t, err)
}

func TestBuildFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.hcl"), []byte(`osc { listen = "127.0.0.1:9000" }`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.oscweb"), []byte(`websocket { path = "/osc" }`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`this is not hcl`), 0o644))

	config := mustBuild(t, dir)
	assert.Equal(t, "127.0.0.1:9000", *config.OSC.Listen)
	assert.Equal(t, "/osc", *config.WebSocket.Path)
}

func TestBuildFromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"conf/osc.hcl":   {Data: []byte(`osc { peer = "10.0.0.5:9000" }`)},
		"conf/README.md": {Data: []byte(`# not configuration`)},
	}

	config := mustBuild(t, fsys)
	assert.Equal(t, "10.0.0.5:9000", *config.OSC.Peer)

	_, diags := build(t, "testdata/does-not-exist.hcl")
	assert.True(t, diags.HasErrors())

	_, diags = build(t, 42)
	assert.True(t, diags.HasErrors())
}

func TestEnv(t *testing.T) {
	t.Setenv("OSCWEB_TEST_PEER_HOST", "10.0.0.7")

	config := mustBuild(t, "testdata/env.oscweb")
	assert.Equal(t, "10.0.0.7:4000", *config.OSC.Peer)
}

func TestSanitizeEnvVarName(t *testing.T) {
	assert.Equal(t, "HOME", sanitizeEnvVarName("HOME"))
	assert.Equal(t, "MY-VAR_2", sanitizeEnvVarName("MY-VAR_2"))
	assert.Equal(t, "_PORT", sanitizeEnvVarName("1PORT"))
	assert.Equal(t, "A_B", sanitizeEnvVarName("A.B"))
	assert.Equal(t, "_", sanitizeEnvVarName(""))

	obj := envObject([]string{"A=1", "B=x=y", "broken"})
	assert.Equal(t, cty.StringVal("1"), obj.GetAttr("A"))
	assert.Equal(t, cty.StringVal("x=y"), obj.GetAttr("B"))
	assert.False(t, obj.Type().HasAttribute("broken"))
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"syntax error", `osc {`},
		{"unknown block", `mqtt { broker = "x" }`},
		{"top-level attribute", `listen = "127.0.0.1:1"`},
		{"unknown attribute", `osc { port = 4002 }`},
		{"duplicate osc block", "osc {}\nosc {}"},
		{"duplicate websocket block", "websocket {}\nwebsocket {}"},
		{"duplicate static path", "static \"/\" { directory = \"a\" }\nstatic \"/\" { directory = \"b\" }"},
		{"duplicate constant", "const { a = 1 }\nconst { a = 2 }"},
		{"reserved constant", `const { env = 1 }`},
		{"constant cycle", `const { a = b + 1, b = a + 1 }`},
		{"self reference", `const { a = a }`},
		{"undefined variable", `osc { listen = nowhere }`},
		{"missing static directory", `static "/" {}`},
		{"missing heartbeat schedule", `heartbeat "/x" {}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, diags := build(t, []byte(tt.source))
			assert.True(t, diags.HasErrors())
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, diags := build(t, "testdata/does-not-exist.hcl")
		assert.True(t, diags.HasErrors())
	})

	t.Run("invalid source type", func(t *testing.T) {
		_, diags := build(t, 42)
		assert.True(t, diags.HasErrors())
	})
}

func TestDiagnosticsPointAtBlocks(t *testing.T) {
	t.Run("duplicate block names the first definition", func(t *testing.T) {
		_, diags := build(t, []byte("osc {}\n\nosc {}\n"))
		require.True(t, diags.HasErrors())
		require.NotNil(t, diags[0].Subject)
		assert.Equal(t, 3, diags[0].Subject.Start.Line)
		assert.Contains(t, diags[0].Detail, ":1,1-")
	})

	t.Run("server settings", func(t *testing.T) {
		tests := []struct {
			name   string
			source string
			line   int
		}{
			{"queue size", "\nwebsocket {\n  queue_size = 0\n}\n", 2},
			{"jq", "\n\ninbound { jq = \"select(\" }\n", 3},
			{"schedule", "heartbeat \"/x\" { schedule = \"sometimes\" }\n", 1},
			{"timezone", "\n\n\nheartbeat \"/x\" {\n  schedule = \"@every 5s\"\n  timezone = \"Mars/Olympus\"\n}\n", 4},
			{"heartbeat message", "\nheartbeat \"x\" { schedule = \"@every 5s\" }\n", 2},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				config := mustBuild(t, []byte(tt.source))
				_, diags := config.ServerConfig()
				require.True(t, diags.HasErrors())
				require.NotNil(t, diags[0].Subject)
				assert.Equal(t, tt.line, diags[0].Subject.Start.Line)
			})
		}
	})

	t.Run("definitions keep their ranges", func(t *testing.T) {
		config := mustBuild(t, []byte("\nstatic \"/ui\" { directory = \"www\" }\nheartbeat \"/x\" { schedule = \"@every 5s\" }\n"))
		assert.Equal(t, 2, config.Static[0].DefRange.Start.Line)
		assert.Equal(t, 3, config.Heartbeats[0].DefRange.Start.Line)
	})
}

func TestConstOrdering(t *testing.T) {
	config := mustBuild(t, []byte(`
const {
  c = "${b}/c"
  b = "${a}/b"
  a = "/a"
}
osc { client_count_address = c }
`))
	assert.Equal(t, cty.StringVal("/a/b/c"), config.Constants["c"])
	assert.Equal(t, "/a/b/c", *config.OSC.ClientCountAddress)
}

func TestServerConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"bad duration", `websocket { ping_interval = "soon" }`},
		{"negative duration", `websocket { ping_interval = -1 }`},
		{"duration type", `websocket { write_timeout = true }`},
		{"zero write timeout", `websocket { write_timeout = 0 }`},
		{"zero queue size", `websocket { queue_size = 0 }`},
		{"bad jq", `inbound { jq = "select(" }`},
		{"bad schedule", `heartbeat "/x" { schedule = "sometimes" }`},
		{"bad timezone", `heartbeat "/x" { schedule = "@every 5s", timezone = "Mars/Olympus" }`},
		{"bad heartbeat address", `heartbeat "x" { schedule = "@every 5s" }`},
		{"heartbeat arguments not a list", `heartbeat "/x" { schedule = "@every 5s", v = "on" }`},
		{"heartbeat nested argument", `heartbeat "/x" { schedule = "@every 5s", v = [{a = 1}] }`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := mustBuild(t, []byte(tt.source))
			_, diags := config.ServerConfig()
			assert.True(t, diags.HasErrors())
		})
	}
}

func TestTransforms(t *testing.T) {
	config := mustBuild(t, "testdata/full.hcl")

	transforms, diags := config.Transforms(config.Outbound)
	require.False(t, diags.HasErrors())
	require.Len(t, transforms, 3)

	doc := func(address string, v ...any) *osc.Document {
		return &osc.Document{Address: address, V: v}
	}

	out := transform.Apply(transforms, doc("/led/on", 1))
	require.NotNil(t, out)
	assert.Equal(t, "/browser/led/on", out.Address)

	assert.Nil(t, transform.Apply(transforms, doc("/led/on")), "jq drops empty argument lists")
	assert.Nil(t, transform.Apply(transforms, doc("/mixer/fader", 1)), "not allowed")

	inbound, diags := config.Transforms(config.Inbound)
	require.False(t, diags.HasErrors())
	assert.Nil(t, transform.Apply(inbound, doc("/debug/trace", "x")))
	assert.NotNil(t, transform.Apply(inbound, doc("/synth/freq", 440.0)))
}

func TestHeartbeat(t *testing.T) {
	config := mustBuild(t, "testdata/full.hcl")

	hb, diags := config.Heartbeat(&config.Heartbeats[0])
	require.False(t, diags.HasErrors(), "unexpected diagnostics: %s", diags)
	assert.Equal(t, "CRON_TZ=UTC @every 10s", hb.Schedule)

	expected := osc.NewMessage("/oscweb/alive", osc.String("oscweb"), osc.Int32(1), osc.Float32(0.5))
	assert.True(t, hb.Message.Equal(expected), "got %s", hb.Message)

	config = mustBuild(t, []byte(`heartbeat "/tick" { schedule = "*/5 * * * * *" }`))
	hb, diags = config.Heartbeat(&config.Heartbeats[0])
	require.False(t, diags.HasErrors())
	assert.Equal(t, "/tick", hb.Message.Address)
	assert.Empty(t, hb.Message.Arguments)
}

func TestConfigParseDuration(t *testing.T) {
	config := &Config{evalCtx: &hcl.EvalContext{}}

	tests := []struct {
		name        string
		input       string
		expected    time.Duration
		expectError bool
	}{
		{name: "integer seconds", input: "30", expected: 30 * time.Second},
		{name: "float seconds", input: "1.5", expected: 1500 * time.Millisecond},
		{name: "zero seconds", input: "0", expected: 0},
		{name: "negative seconds", input: "-5", expectError: true},
		{name: "ISO 8601 minutes", input: `"PT5M"`, expected: 5 * time.Minute},
		{name: "ISO 8601 hours and minutes", input: `"PT1H30M"`, expected: 90 * time.Minute},
		{name: "ISO 8601 seconds", input: `"PT30S"`, expected: 30 * time.Second},
		{name: "invalid ISO 8601", input: `"PXYZ"`, expectError: true},
		{name: "Go duration", input: `"250ms"`, expected: 250 * time.Millisecond},
		{name: "Go duration compound", input: `"1m30s"`, expected: 90 * time.Second},
		{name: "Go duration with spaces", input: `"  10s  "`, expected: 10 * time.Second},
		{name: "negative Go duration", input: `"-10s"`, expectError: true},
		{name: "invalid string", input: `"later"`, expectError: true},
		{name: "boolean", input: "true", expectError: true},
		{name: "null", input: "null", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, parseDiags := hclsyntax.ParseExpression([]byte(tt.input), "test.hcl", hcl.Pos{Line: 1, Column: 1})
			require.False(t, parseDiags.HasErrors())

			d, diags := config.ParseDuration(expr)
			if tt.expectError {
				assert.True(t, diags.HasErrors())
				return
			}
			require.False(t, diags.HasErrors(), "unexpected diagnostics: %s", diags)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestIsExpressionProvided(t *testing.T) {
	assert.False(t, IsExpressionProvided(nil))

	expr, diags := hclsyntax.ParseExpression([]byte(`"30s"`), "test.hcl", hcl.Pos{Line: 1, Column: 1})
	require.False(t, diags.HasErrors())
	assert.True(t, IsExpressionProvided(expr))
}
