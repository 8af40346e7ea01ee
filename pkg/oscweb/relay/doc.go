// Package relay moves messages across the bridge.
//
// Inbound reads OSC datagrams from the UDP socket and broadcasts their JSON
// form to every registered WebSocket client. Connection serves one WebSocket
// client: it registers the client for broadcasts, reads the client's frames in
// order and forwards each well-formed document to the OSC peer.
package relay
