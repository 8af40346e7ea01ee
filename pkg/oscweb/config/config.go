// Package config loads bridge configuration from HCL files.
package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"go.uber.org/zap"
)

type ConfigBuilder struct {
	logger  *zap.Logger
	sources []any
}

// Config is a parsed and decoded configuration. Every block is optional;
// unset values fall back to the server defaults.
type Config struct {
	Logger    *zap.Logger
	Functions map[string]function.Function
	Constants map[string]cty.Value
	evalCtx   *hcl.EvalContext

	OSC        *OSCDefinition
	WebSocket  *WebSocketDefinition
	Inbound    *TransformDefinition
	Outbound   *TransformDefinition
	Static     []StaticDefinition
	Heartbeats []HeartbeatDefinition
}

func NewConfig() *ConfigBuilder {
	return &ConfigBuilder{
		sources: make([]any, 0),
	}
}

func (c *ConfigBuilder) WithLogger(logger *zap.Logger) *ConfigBuilder {
	c.logger = logger
	return c
}

// WithSources adds configuration sources: file or directory paths, []byte
// holding HCL text, or an fs.FS such as an embed.FS.
func (c *ConfigBuilder) WithSources(sources ...any) *ConfigBuilder {
	c.sources = append(c.sources, sources...)
	return c
}

func (cb *ConfigBuilder) Build() (*Config, hcl.Diagnostics) {
	logger := cb.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	config := &Config{
		Logger:    logger,
		Functions: GetStandardLibraryFunctions(),
		Constants: make(map[string]cty.Value),
	}

	bodies, diags := ParseConfigFiles(cb.sources...)
	if diags.HasErrors() {
		return nil, diags
	}

	config.Constants["env"] = GetEnvObject()
	config.evalCtx = &hcl.EvalContext{
		Functions: config.Functions,
		Variables: config.Constants,
	}

	blocks, addDiags := GetBlocks(bodies)
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return nil, diags
	}

	// Constants first, so every other block can refer to them.
	diags = diags.Extend(config.processConstBlocks(blocks.OfType("const")))
	if diags.HasErrors() {
		return nil, diags
	}

	for _, block := range blocks {
		switch block.Type {
		case "osc":
			if config.OSC != nil {
				diags = diags.Append(duplicateBlock(block, config.OSC.DefRange))
				continue
			}
			config.OSC = &OSCDefinition{}
			diags = diags.Extend(gohcl.DecodeBody(block.Body, config.evalCtx, config.OSC))
			config.OSC.DefRange = block.DefRange
		case "websocket":
			if config.WebSocket != nil {
				diags = diags.Append(duplicateBlock(block, config.WebSocket.DefRange))
				continue
			}
			config.WebSocket = &WebSocketDefinition{}
			diags = diags.Extend(gohcl.DecodeBody(block.Body, config.evalCtx, config.WebSocket))
			config.WebSocket.DefRange = block.DefRange
		case "inbound":
			if config.Inbound != nil {
				diags = diags.Append(duplicateBlock(block, config.Inbound.DefRange))
				continue
			}
			config.Inbound = &TransformDefinition{}
			diags = diags.Extend(gohcl.DecodeBody(block.Body, config.evalCtx, config.Inbound))
			config.Inbound.DefRange = block.DefRange
		case "outbound":
			if config.Outbound != nil {
				diags = diags.Append(duplicateBlock(block, config.Outbound.DefRange))
				continue
			}
			config.Outbound = &TransformDefinition{}
			diags = diags.Extend(gohcl.DecodeBody(block.Body, config.evalCtx, config.Outbound))
			config.Outbound.DefRange = block.DefRange
		case "static":
			diags = diags.Extend(config.processStaticBlock(block))
		case "heartbeat":
			diags = diags.Extend(config.processHeartbeatBlock(block))
		}
	}

	if diags.HasErrors() {
		return nil, diags
	}

	config.Logger.Debug("Config built successfully")

	return config, diags
}

// duplicateBlock reports a second occurrence of a block that may appear at
// most once across all sources.
func duplicateBlock(block *hcl.Block, existing hcl.Range) *hcl.Diagnostic {
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  fmt.Sprintf("Duplicate %s block", block.Type),
		Detail:   fmt.Sprintf("A %s block is already defined at %s", block.Type, existing),
		Subject:  &block.DefRange,
	}
}

func (c *Config) processStaticBlock(block *hcl.Block) hcl.Diagnostics {
	def := StaticDefinition{}
	diags := gohcl.DecodeBody(block.Body, c.evalCtx, &def)
	if diags.HasErrors() {
		return diags
	}
	def.URLPath = block.Labels[0]
	def.DefRange = block.DefRange

	for _, existing := range c.Static {
		if existing.URLPath == def.URLPath {
			return hcl.Diagnostics{
				&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Static path already defined",
					Detail:   fmt.Sprintf("Static path %s already defined at %s", def.URLPath, existing.DefRange),
					Subject:  &block.DefRange,
				},
			}
		}
	}

	c.Static = append(c.Static, def)
	return diags
}

func (c *Config) processHeartbeatBlock(block *hcl.Block) hcl.Diagnostics {
	def := HeartbeatDefinition{}
	diags := gohcl.DecodeBody(block.Body, c.evalCtx, &def)
	if diags.HasErrors() {
		return diags
	}
	def.Address = block.Labels[0]
	def.DefRange = block.DefRange

	c.Heartbeats = append(c.Heartbeats, def)
	return diags
}
