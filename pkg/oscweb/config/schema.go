package config

import (
	"github.com/hashicorp/hcl/v2"
)

var blockSchema = []hcl.BlockHeaderSchema{
	{
		Type:       "const",
		LabelNames: []string{},
	},
	{
		Type:       "heartbeat",
		LabelNames: []string{"address"},
	},
	{
		Type:       "inbound",
		LabelNames: []string{},
	},
	{
		Type:       "osc",
		LabelNames: []string{},
	},
	{
		Type:       "outbound",
		LabelNames: []string{},
	},
	{
		Type:       "static",
		LabelNames: []string{"urlpath"},
	},
	{
		Type:       "websocket",
		LabelNames: []string{},
	},
}

var configSchema = &hcl.BodySchema{
	Blocks: blockSchema,
}

type OSCDefinition struct {
	Listen             *string   `hcl:"listen,optional"`
	Peer               *string   `hcl:"peer,optional"`
	ClientCountAddress *string   `hcl:"client_count_address,optional"`
	DefRange           hcl.Range `hcl:",def_range"`
}

type WebSocketDefinition struct {
	Listen         *string        `hcl:"listen,optional"`
	Path           *string        `hcl:"path,optional"`
	QueueSize      *int           `hcl:"queue_size,optional"`
	PingInterval   hcl.Expression `hcl:"ping_interval,optional"`
	WriteTimeout   hcl.Expression `hcl:"write_timeout,optional"`
	ReadLimit      *int64         `hcl:"read_limit,optional"`
	OriginPatterns []string       `hcl:"origin_patterns,optional"`
	DefRange       hcl.Range      `hcl:",def_range"`
}

// TransformDefinition describes the transforms of one direction. They run in
// the order allow_addresses, drop_addresses, drop_prefixes, jq, add_prefix.
type TransformDefinition struct {
	AllowAddresses []string  `hcl:"allow_addresses,optional"`
	DropAddresses  []string  `hcl:"drop_addresses,optional"`
	DropPrefixes   []string  `hcl:"drop_prefixes,optional"`
	Jq             *string   `hcl:"jq,optional"`
	AddPrefix      *string   `hcl:"add_prefix,optional"`
	DefRange       hcl.Range `hcl:",def_range"`
}

type StaticDefinition struct {
	URLPath   string    `hcl:"urlpath,label"`
	Directory string    `hcl:"directory"`
	Disabled  bool      `hcl:"disabled,optional"`
	DefRange  hcl.Range `hcl:",def_range"`
}

type HeartbeatDefinition struct {
	Address  string         `hcl:"address,label"`
	Schedule string         `hcl:"schedule"`
	Timezone string         `hcl:"timezone,optional"`
	Values   hcl.Expression `hcl:"v,optional"`
	DefRange hcl.Range      `hcl:",def_range"`
}
