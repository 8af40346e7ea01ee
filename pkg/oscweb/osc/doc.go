// Package osc holds the bridge's view of Open Sound Control messages and the
// codec that maps them to and from the JSON documents exchanged with
// WebSocket clients.
//
// An OSC message is an address plus an ordered list of typed arguments. On the
// WebSocket side the same message travels as
//
//	{"address": "/synth/freq", "v": [440.0]}
//
// where every argument is a JSON primitive, except byte blobs which are
// wrapped as {"base64": "<standard base64>"} because JSON has no binary type.
// The wrapper is only produced, never consumed: documents sent by clients may
// carry primitives only.
package osc
