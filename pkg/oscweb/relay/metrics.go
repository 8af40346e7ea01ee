package relay

import (
	"context"
	"time"

	"github.com/tsarna/oscweb/pkg/oscweb/o11y"
)

// Metrics holds the instruments recorded by the relays and the server. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// OSC side
	datagramsReceived  o11y.Counter   // UDP datagrams read from the OSC socket
	datagramsMalformed o11y.Counter   // Datagrams that failed to parse
	messagesBroadcast  o11y.Counter   // OSC messages broadcast to clients
	deliveries         o11y.Counter   // Successful per-client deliveries
	oscSent            o11y.Counter   // OSC messages sent to the peer
	oscSendErrors      o11y.Counter   // Failed sends to the peer
	documentSize       o11y.Histogram // Size of JSON documents (bytes)

	// WebSocket side
	activeConnections  o11y.Gauge     // Currently registered clients
	totalConnections   o11y.Counter   // Connections accepted
	connectionDuration o11y.Histogram // Lifetime of connections
	connectionErrors   o11y.Counter   // Upgrade failures and similar
	framesReceived     o11y.Counter   // Frames read from clients
	framesMalformed    o11y.Counter   // Frames dropped as malformed
	documentsDropped   o11y.Counter   // Documents dropped by transforms
	pingsSent          o11y.Counter   // Ping frames sent
	writeErrors        o11y.Counter   // Failed writes to clients
}

// NewMetrics creates a Metrics from provider. A nil provider yields nil.
func NewMetrics(provider o11y.MetricsProvider) *Metrics {
	if provider == nil {
		return nil
	}

	return &Metrics{
		datagramsReceived:  provider.Counter("oscweb_osc_datagrams_received_total"),
		datagramsMalformed: provider.Counter("oscweb_osc_datagrams_malformed_total"),
		messagesBroadcast:  provider.Counter("oscweb_osc_messages_broadcast_total"),
		deliveries:         provider.Counter("oscweb_broadcast_deliveries_total"),
		oscSent:            provider.Counter("oscweb_osc_messages_sent_total"),
		oscSendErrors:      provider.Counter("oscweb_osc_send_errors_total"),
		documentSize:       provider.Histogram("oscweb_document_size_bytes"),

		activeConnections:  provider.Gauge("oscweb_websocket_active_connections"),
		totalConnections:   provider.Counter("oscweb_websocket_connections_total"),
		connectionDuration: provider.Histogram("oscweb_websocket_connection_duration_seconds"),
		connectionErrors:   provider.Counter("oscweb_websocket_connection_errors_total"),
		framesReceived:     provider.Counter("oscweb_websocket_frames_received_total"),
		framesMalformed:    provider.Counter("oscweb_websocket_frames_malformed_total"),
		documentsDropped:   provider.Counter("oscweb_documents_dropped_total"),
		pingsSent:          provider.Counter("oscweb_websocket_pings_sent_total"),
		writeErrors:        provider.Counter("oscweb_websocket_write_errors_total"),
	}
}

func direction(d string) o11y.Label {
	return o11y.Label{Key: "direction", Value: d}
}

// OSC side

// RecordDatagramReceived records a datagram read from the OSC socket.
func (m *Metrics) RecordDatagramReceived(ctx context.Context) {
	if m == nil {
		return
	}
	m.datagramsReceived.Add(ctx, 1)
}

// RecordDatagramMalformed records a datagram that could not be parsed.
func (m *Metrics) RecordDatagramMalformed(ctx context.Context) {
	if m == nil {
		return
	}
	m.datagramsMalformed.Add(ctx, 1)
}

// RecordBroadcast records one message broadcast and how many clients took it.
func (m *Metrics) RecordBroadcast(ctx context.Context, sizeBytes int, delivered int) {
	if m == nil {
		return
	}
	m.messagesBroadcast.Add(ctx, 1)
	m.deliveries.Add(ctx, int64(delivered))
	m.documentSize.Record(ctx, float64(sizeBytes), direction("inbound"))
}

// RecordOSCSent records the outcome of a send to the OSC peer.
func (m *Metrics) RecordOSCSent(ctx context.Context, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.oscSendErrors.Add(ctx, 1)
		return
	}
	m.oscSent.Add(ctx, 1)
}

// RecordDocumentDropped records a document dropped by a transform.
func (m *Metrics) RecordDocumentDropped(ctx context.Context, dir string) {
	if m == nil {
		return
	}
	m.documentsDropped.Add(ctx, 1, direction(dir))
}

// WebSocket side

// RecordConnectionStart records a newly accepted connection.
func (m *Metrics) RecordConnectionStart(ctx context.Context) {
	if m == nil {
		return
	}
	m.totalConnections.Add(ctx, 1)
}

// RecordConnectionActive updates the registered client count.
func (m *Metrics) RecordConnectionActive(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.activeConnections.Set(ctx, float64(count))
}

// RecordConnectionEnd records the lifetime of a finished connection.
func (m *Metrics) RecordConnectionEnd(ctx context.Context, duration time.Duration) {
	if m == nil {
		return
	}
	m.connectionDuration.Record(ctx, duration.Seconds())
}

// RecordConnectionError records a connection-level failure such as a failed upgrade.
func (m *Metrics) RecordConnectionError(ctx context.Context, errorType string) {
	if m == nil {
		return
	}
	m.connectionErrors.Add(ctx, 1, o11y.Label{Key: "error_type", Value: errorType})
}

// RecordFrameReceived records a frame read from a client.
func (m *Metrics) RecordFrameReceived(ctx context.Context, sizeBytes int) {
	if m == nil {
		return
	}
	m.framesReceived.Add(ctx, 1)
	m.documentSize.Record(ctx, float64(sizeBytes), direction("outbound"))
}

// RecordFrameMalformed records a frame dropped because it did not decode.
func (m *Metrics) RecordFrameMalformed(ctx context.Context) {
	if m == nil {
		return
	}
	m.framesMalformed.Add(ctx, 1)
}

// RecordPingSent records a ping frame.
func (m *Metrics) RecordPingSent(ctx context.Context) {
	if m == nil {
		return
	}
	m.pingsSent.Add(ctx, 1)
}

// RecordWriteError records a failed write to a client.
func (m *Metrics) RecordWriteError(ctx context.Context) {
	if m == nil {
		return
	}
	m.writeErrors.Add(ctx, 1)
}
