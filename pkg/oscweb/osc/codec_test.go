package osc

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOSC(t *testing.T) {
	t.Run("float argument keeps its decimal point", func(t *testing.T) {
		doc := DecodeOSC(NewMessage("/synth/freq", Float32(440.0)))

		data, err := doc.Marshal()
		require.NoError(t, err)
		assert.Equal(t, `{"address":"/synth/freq","v":[440.0]}`, string(data))
	})

	t.Run("blob argument is wrapped in base64 object", func(t *testing.T) {
		blob := []byte("0123456789abcdefg")
		require.Len(t, blob, 17)

		doc := DecodeOSC(NewMessage("/sample/data", Bytes(blob)))
		require.Len(t, doc.V, 1)
		assert.Equal(t, map[string]any{"base64": base64.StdEncoding.EncodeToString(blob)}, doc.V[0])

		data, err := doc.Marshal()
		require.NoError(t, err)
		assert.Equal(t, `{"address":"/sample/data","v":[{"base64":"MDEyMzQ1Njc4OWFiY2RlZmc="}]}`, string(data))
	})

	t.Run("only blobs are wrapped", func(t *testing.T) {
		doc := DecodeOSC(NewMessage("/mixed",
			Int32(7), Bytes([]byte{1, 2, 3}), String("hello"), Float32(0.5)))

		require.Len(t, doc.V, 4)
		assert.Equal(t, json.Number("7"), doc.V[0])
		assert.Equal(t, map[string]any{"base64": "AQID"}, doc.V[1])
		assert.Equal(t, "hello", doc.V[2])
		assert.Equal(t, json.Number("0.5"), doc.V[3])
	})

	t.Run("no arguments encodes an empty array", func(t *testing.T) {
		data, err := DecodeOSC(NewMessage("/ping")).Marshal()
		require.NoError(t, err)
		assert.Equal(t, `{"address":"/ping","v":[]}`, string(data))
	})

	t.Run("extension kinds map to JSON primitives", func(t *testing.T) {
		doc := DecodeOSC(NewMessage("/ext",
			Bool(true), Bool(false), Nil(), Int64(1<<40), Float64(2), Timetag(1)))

		data, err := doc.Marshal()
		require.NoError(t, err)
		assert.Equal(t, `{"address":"/ext","v":[true,false,null,1099511627776,2.0,1]}`, string(data))
	})

	t.Run("non-finite floats become null", func(t *testing.T) {
		doc := DecodeOSC(NewMessage("/nan",
			Float32(float32(math.NaN())), Float32(float32(math.Inf(1)))))

		assert.Equal(t, []any{nil, nil}, doc.V)
	})

	t.Run("html characters are not escaped", func(t *testing.T) {
		data, err := DecodeOSC(NewMessage("/a&b", String("<tag>"))).Marshal()
		require.NoError(t, err)
		assert.Equal(t, `{"address":"/a&b","v":["<tag>"]}`, string(data))
	})
}

func TestEncodeOSC(t *testing.T) {
	t.Run("integer literal becomes int32", func(t *testing.T) {
		doc, err := ParseDocument([]byte(`{"address":"/led/on","v":[1]}`))
		require.NoError(t, err)

		msg, err := EncodeOSC(doc)
		require.NoError(t, err)
		assert.True(t, msg.Equal(NewMessage("/led/on", Int32(1))), "got %s", msg)
	})

	t.Run("number kinds", func(t *testing.T) {
		doc, err := ParseDocument([]byte(`{"address":"/n","v":[-5, 3000000000, 1.5, 2e3, 440.0]}`))
		require.NoError(t, err)

		msg, err := EncodeOSC(doc)
		require.NoError(t, err)
		expected := NewMessage("/n", Int32(-5), Int64(3000000000), Float32(1.5), Float32(2000), Float32(440))
		assert.True(t, msg.Equal(expected), "got %s", msg)
	})

	t.Run("strings booleans and null", func(t *testing.T) {
		doc, err := ParseDocument([]byte(`{"address":"/s","v":["hi", true, false, null]}`))
		require.NoError(t, err)

		msg, err := EncodeOSC(doc)
		require.NoError(t, err)
		assert.True(t, msg.Equal(NewMessage("/s", String("hi"), Bool(true), Bool(false), Nil())), "got %s", msg)
	})

	t.Run("go native values", func(t *testing.T) {
		msg, err := EncodeOSC(Document{Address: "/g", V: []any{42, 1.25, int64(7)}})
		require.NoError(t, err)
		assert.True(t, msg.Equal(NewMessage("/g", Int32(42), Float32(1.25), Int32(7))), "got %s", msg)
	})

	t.Run("blob wrapper is not reconstructed", func(t *testing.T) {
		doc, err := ParseDocument([]byte(`{"address":"/b","v":[{"base64":"AQID"}]}`))
		require.NoError(t, err)

		_, err = EncodeOSC(doc)
		var decodeErr *DecodeError
		require.True(t, errors.As(err, &decodeErr))
		assert.Contains(t, decodeErr.Error(), "argument 0")
	})

	t.Run("nested array is rejected", func(t *testing.T) {
		_, err := EncodeOSC(Document{Address: "/a", V: []any{[]any{1}}})
		assert.Error(t, err)
	})

	t.Run("address must start with slash", func(t *testing.T) {
		_, err := EncodeOSC(Document{Address: "led/on", V: []any{}})
		var decodeErr *DecodeError
		assert.True(t, errors.As(err, &decodeErr))

		_, err = EncodeOSC(Document{Address: "", V: []any{}})
		assert.Error(t, err)
	})
}

func TestRoundTrip(t *testing.T) {
	messages := []Message{
		NewMessage("/empty"),
		NewMessage("/synth/freq", Float32(440)),
		NewMessage("/ints", Int32(0), Int32(-1), Int32(math.MaxInt32), Int32(math.MinInt32)),
		NewMessage("/floats", Float32(0.1), Float32(-3.25), Float32(1e-7), Float32(3.4e38), Float32(1e6)),
		NewMessage("/strings", String(""), String("héllo wörld"), String(`quote " and \ backslash`)),
		NewMessage("/mixed", String("a"), Int32(2), Float32(3.5), String("d")),
	}

	for _, m := range messages {
		t.Run(m.Address, func(t *testing.T) {
			direct, err := EncodeOSC(DecodeOSC(m))
			require.NoError(t, err)
			assert.True(t, m.Equal(direct), "direct: want %s got %s", m, direct)

			data, err := DecodeOSC(m).Marshal()
			require.NoError(t, err)
			doc, err := ParseDocument(data)
			require.NoError(t, err)
			viaJSON, err := EncodeOSC(doc)
			require.NoError(t, err)
			assert.True(t, m.Equal(viaJSON), "via JSON %s: want %s got %s", data, m, viaJSON)
		})
	}
}

func TestParseDocument(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `hello`},
		{"array", `[1,2]`},
		{"null", `null`},
		{"missing address", `{"v":[]}`},
		{"address not string", `{"address":5,"v":[]}`},
		{"missing v", `{"address":"/a"}`},
		{"v not array", `{"address":"/a","v":1}`},
		{"trailing data", `{"address":"/a","v":[]} {}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(tt.input))
			var decodeErr *DecodeError
			assert.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %v", err)
		})
	}

	t.Run("extra keys are ignored", func(t *testing.T) {
		doc, err := ParseDocument([]byte(`{"address":"/a","v":[1],"id":"x"}`))
		require.NoError(t, err)
		assert.Equal(t, "/a", doc.Address)
		assert.Equal(t, []any{json.Number("1")}, doc.V)
	})
}
