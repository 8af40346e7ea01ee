package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/tsarna/go2cty2go"
	"github.com/tsarna/oscweb/pkg/oscweb/osc"
	"github.com/tsarna/oscweb/pkg/oscweb/server"
	"github.com/tsarna/oscweb/pkg/oscweb/transform"
)

// ServerConfig returns a server builder populated from the configuration.
// Callers may override individual settings before calling Build.
func (c *Config) ServerConfig() (*server.Config, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	sc := server.NewConfig().WithLogger(c.Logger)

	if def := c.OSC; def != nil {
		if def.Listen != nil {
			sc.WithOSCListenAddress(*def.Listen)
		}
		if def.Peer != nil {
			sc.WithOSCPeerAddress(*def.Peer)
		}
		if def.ClientCountAddress != nil {
			sc.WithClientCountAddress(*def.ClientCountAddress)
		}
	}

	if def := c.WebSocket; def != nil {
		diags = diags.Extend(c.applyWebSocket(sc, def))
	}

	if c.Inbound != nil {
		transforms, addDiags := c.Transforms(c.Inbound)
		diags = diags.Extend(addDiags)
		sc.WithInboundTransforms(transforms...)
	}

	if c.Outbound != nil {
		transforms, addDiags := c.Transforms(c.Outbound)
		diags = diags.Extend(addDiags)
		sc.WithOutboundTransforms(transforms...)
	}

	for _, def := range c.Static {
		if !def.Disabled {
			sc.WithStaticDir(def.URLPath, def.Directory)
		}
	}

	for i := range c.Heartbeats {
		hb, addDiags := c.Heartbeat(&c.Heartbeats[i])
		diags = diags.Extend(addDiags)
		if !addDiags.HasErrors() {
			sc.WithHeartbeat(hb.Schedule, hb.Message)
		}
	}

	if diags.HasErrors() {
		return nil, diags
	}

	return sc, diags
}

func (c *Config) applyWebSocket(sc *server.Config, def *WebSocketDefinition) hcl.Diagnostics {
	var diags hcl.Diagnostics

	if def.Listen != nil {
		sc.WithWebSocketAddress(*def.Listen)
	}
	if def.Path != nil {
		sc.WithPath(*def.Path)
	}
	if def.QueueSize != nil {
		if *def.QueueSize <= 0 {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid queue size",
				Detail:   "queue_size must be positive",
				Subject:  &def.DefRange,
			})
		}
		sc.WithQueueSize(*def.QueueSize)
	}
	if def.ReadLimit != nil {
		sc.WithReadLimit(*def.ReadLimit)
	}
	if len(def.OriginPatterns) > 0 {
		sc.WithOriginPatterns(def.OriginPatterns...)
	}

	if IsExpressionProvided(def.PingInterval) {
		pingInterval, addDiags := c.ParseDuration(def.PingInterval)
		diags = diags.Extend(addDiags)
		sc.WithPingInterval(pingInterval)
	}

	if IsExpressionProvided(def.WriteTimeout) {
		writeTimeout, addDiags := c.ParseDuration(def.WriteTimeout)
		diags = diags.Extend(addDiags)
		if writeTimeout == 0 && !addDiags.HasErrors() {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid write timeout",
				Detail:   "write_timeout must be greater than zero",
				Subject:  def.WriteTimeout.Range().Ptr(),
			})
		}
		sc.WithWriteTimeout(writeTimeout)
	}

	return diags
}

// Transforms builds the transform chain described by def.
func (c *Config) Transforms(def *TransformDefinition) ([]transform.DocumentTransformFunc, hcl.Diagnostics) {
	var transforms []transform.DocumentTransformFunc

	if len(def.AllowAddresses) > 0 {
		transforms = append(transforms, transform.AllowAddressPattern(def.AllowAddresses...))
	}
	if len(def.DropAddresses) > 0 {
		transforms = append(transforms, transform.DropAddressPattern(def.DropAddresses...))
	}
	for _, prefix := range def.DropPrefixes {
		transforms = append(transforms, transform.DropAddressPrefix(prefix))
	}

	if def.Jq != nil {
		jq, err := transform.JqTransform(*def.Jq, c.Logger)
		if err != nil {
			return nil, hcl.Diagnostics{
				&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Invalid jq query",
					Detail:   err.Error(),
					Subject:  &def.DefRange,
				},
			}
		}
		transforms = append(transforms, jq)
	}

	if def.AddPrefix != nil {
		transforms = append(transforms, transform.AddAddressPrefix(*def.AddPrefix))
	}

	return transforms, nil
}

// Heartbeat resolves a heartbeat block into a schedule and message. The
// message arguments follow the same rules as a client document, so
// v = [1, 0.5, "on"] sends int32, float32 and string arguments.
func (c *Config) Heartbeat(def *HeartbeatDefinition) (server.Heartbeat, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	invalid := func(summary, detail string, subject *hcl.Range) (server.Heartbeat, hcl.Diagnostics) {
		return server.Heartbeat{}, diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  summary,
			Detail:   detail,
			Subject:  subject,
		})
	}

	schedule := def.Schedule
	if def.Timezone != "" {
		if _, err := time.LoadLocation(def.Timezone); err != nil {
			return invalid("Invalid timezone", fmt.Sprintf("Invalid timezone: %s", def.Timezone), &def.DefRange)
		}
		schedule = fmt.Sprintf("CRON_TZ=%s %s", def.Timezone, schedule)
	}
	if err := server.ValidateSchedule(schedule); err != nil {
		return invalid("Invalid schedule", fmt.Sprintf("Invalid schedule %q: %s", def.Schedule, err), &def.DefRange)
	}

	doc := osc.Document{Address: def.Address, V: []any{}}
	if IsExpressionProvided(def.Values) {
		val, valDiags := def.Values.Value(c.evalCtx)
		diags = diags.Extend(valDiags)
		if valDiags.HasErrors() {
			return server.Heartbeat{}, diags
		}

		ty := val.Type()
		if val.IsNull() || (!ty.IsTupleType() && !ty.IsListType()) {
			return invalid("Invalid heartbeat arguments",
				fmt.Sprintf("v must be a list, got %s", ty.FriendlyName()), def.Values.Range().Ptr())
		}

		// Whole numbers come back as int64 and others as float64, which
		// EncodeOSC turns into int32 and float32 arguments.
		native, err := go2cty2go.CtyToAny(val)
		if err != nil {
			return invalid("Invalid heartbeat arguments", err.Error(), def.Values.Range().Ptr())
		}
		if list, ok := native.([]any); ok {
			doc.V = list
		}
	}

	msg, err := osc.EncodeOSC(doc)
	if err == nil {
		return server.Heartbeat{Schedule: schedule, Message: msg}, diags
	}

	return invalid("Invalid heartbeat message", err.Error(), &def.DefRange)
}
