package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/tsarna/oscweb/pkg/oscweb/o11y"
	"github.com/tsarna/oscweb/pkg/oscweb/osc"
	"github.com/tsarna/oscweb/pkg/oscweb/registry"
	"github.com/tsarna/oscweb/pkg/oscweb/transform"
	"go.uber.org/zap"
)

const (
	DefaultQueueSize    = 256
	DefaultPingInterval = 30 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultReadLimit    = 32768
)

// ConnectionState is the lifecycle state of a Connection.
type ConnectionState int32

const (
	ConnectionConnected ConnectionState = iota
	ConnectionReading
	ConnectionForwarding
	ConnectionClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionConnected:
		return "connected"
	case ConnectionReading:
		return "reading"
	case ConnectionForwarding:
		return "forwarding"
	case ConnectionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionOptions configures a Connection. Zero values select the defaults.
type ConnectionOptions struct {
	QueueSize    int
	PingInterval time.Duration // zero uses the default, negative disables pings
	WriteTimeout time.Duration
	ReadLimit    int64
	Transforms   []transform.DocumentTransformFunc
	Logger       *zap.Logger
	Metrics      *Metrics
	Tracing      o11y.TracingProvider
}

func (o ConnectionOptions) withDefaults() ConnectionOptions {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.PingInterval == 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = DefaultReadLimit
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Connection serves one WebSocket client. It is a registry.Client: broadcasts
// are queued by Send and written by a dedicated sender goroutine, so a slow
// client never blocks the broadcaster. Frames read from the client are
// forwarded to the OSC peer in arrival order.
type Connection struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	conn      *websocket.Conn
	registry  *registry.Registry
	forwarder Forwarder
	opts      ConnectionOptions
	logger    *zap.Logger
	started   time.Time
	state     atomic.Int32

	// Outbound payloads; never closed, done signals the sender instead.
	outbound chan []byte
	done     chan struct{}

	cleanupOnce sync.Once
}

// NewConnection creates a Connection for conn. Nothing happens until Serve is
// called.
func NewConnection(ctx context.Context, conn *websocket.Conn, reg *registry.Registry, forwarder Forwarder, opts ConnectionOptions) *Connection {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()

	return &Connection{
		id:        id,
		ctx:       ctx,
		cancel:    cancel,
		conn:      conn,
		registry:  reg,
		forwarder: forwarder,
		opts:      opts,
		logger:    opts.Logger.With(zap.String("client_id", id)),
		started:   time.Now(),
		outbound:  make(chan []byte, opts.QueueSize),
		done:      make(chan struct{}),
	}
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string {
	return c.id
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Send queues payload for delivery without blocking.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.done:
		return registry.ErrClientClosed
	default:
	}

	select {
	case c.outbound <- payload:
		return nil
	case <-c.done:
		return registry.ErrClientClosed
	default:
		return registry.ErrQueueFull
	}
}

// Serve registers the connection for broadcasts and handles it until the
// client goes away or the context ends. It always deregisters before
// returning.
func (c *Connection) Serve() {
	c.logger.Debug("Starting WebSocket connection handler")
	c.opts.Metrics.RecordConnectionStart(c.ctx)

	c.registry.Add(c)
	defer c.cleanup()

	go c.messageSender()

	c.messageReader()

	c.logger.Debug("WebSocket connection handler stopping")
}

// messageSender serializes every write to the client: queued broadcasts and
// periodic pings.
func (c *Connection) messageSender() {
	defer c.logger.Debug("Message sender goroutine stopped")

	var pingChan <-chan time.Time
	if c.opts.PingInterval > 0 {
		pingTicker := time.NewTicker(c.opts.PingInterval)
		defer pingTicker.Stop()
		pingChan = pingTicker.C
	}

	for {
		select {
		case payload := <-c.outbound:
			writeCtx, cancel := context.WithTimeout(c.ctx, c.opts.WriteTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()

			if err != nil {
				c.opts.Metrics.RecordWriteError(c.ctx)
				c.logger.Debug("Failed to write to WebSocket client, closing", zap.Error(err))
				// Unblocks the reader so the connection is cleaned up.
				c.conn.CloseNow()
				return
			}

		case <-pingChan:
			pingCtx, cancel := context.WithTimeout(c.ctx, c.opts.WriteTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()

			if err != nil {
				c.logger.Debug("Ping failed, closing connection", zap.Error(err))
				c.conn.CloseNow()
				return
			}
			c.opts.Metrics.RecordPingSent(c.ctx)

		case <-c.done:
			return

		case <-c.ctx.Done():
			return
		}
	}
}

// messageReader reads frames one at a time until the stream ends. There is no
// per-read timeout; dead peers are detected by the ping in messageSender.
func (c *Connection) messageReader() {
	defer c.logger.Debug("Message reader stopped")

	c.conn.SetReadLimit(c.opts.ReadLimit)

	for {
		c.state.Store(int32(ConnectionReading))

		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				c.logger.Debug("WebSocket connection closed by client",
					zap.Int("close_status", int(status)),
				)
			} else if c.ctx.Err() == nil {
				c.logger.Debug("WebSocket read ended", zap.Error(err))
			}
			return
		}

		if len(data) == 0 {
			c.logger.Debug("Received empty WebSocket message, ignoring")
			continue
		}

		c.opts.Metrics.RecordFrameReceived(c.ctx, len(data))

		c.state.Store(int32(ConnectionForwarding))
		c.handleFrame(data)
	}
}

// handleFrame forwards one frame to the OSC peer. A frame that does not
// decode is dropped and the connection stays open.
func (c *Connection) handleFrame(data []byte) {
	ctx, span := o11y.StartSpan(c.ctx, c.opts.Tracing, "osc.forward")
	defer span.End()

	doc, err := osc.ParseDocument(data)
	if err != nil {
		o11y.Fail(span, err)
		c.dropMalformed(ctx, data, err)
		return
	}
	span.SetAttributes(o11y.Label{Key: "osc.address", Value: doc.Address})

	out := transform.Apply(c.opts.Transforms, &doc)
	if out == nil {
		c.opts.Metrics.RecordDocumentDropped(ctx, "outbound")
		c.logger.Debug("Outbound document dropped by transform", zap.String("address", doc.Address))
		return
	}

	msg, err := osc.EncodeOSC(*out)
	if err != nil {
		o11y.Fail(span, err)
		c.dropMalformed(ctx, data, err)
		return
	}

	if err := c.forwarder.Forward(ctx, msg); err != nil {
		o11y.Fail(span, err)
		c.logger.Warn("Failed to forward message to OSC peer",
			zap.String("address", msg.Address),
			zap.Error(err),
		)
		return
	}

	c.logger.Debug("Forwarded WebSocket message to OSC",
		zap.String("address", msg.Address),
		zap.Int("args", len(msg.Arguments)),
	)
}

func (c *Connection) dropMalformed(ctx context.Context, data []byte, err error) {
	c.opts.Metrics.RecordFrameMalformed(ctx)

	raw := data
	if len(raw) > 256 {
		raw = raw[:256]
	}
	c.logger.Warn("Dropping malformed WebSocket message",
		zap.Error(err),
		zap.ByteString("raw_data", raw),
		zap.Int("data_length", len(data)),
	)
}

// cleanup deregisters the connection and releases its resources. Safe to call
// more than once.
func (c *Connection) cleanup() {
	c.cleanupOnce.Do(func() {
		c.logger.Debug("Cleaning up WebSocket connection")

		c.registry.Remove(c)
		close(c.done)
		c.cancel()

		err := c.conn.Close(websocket.StatusNormalClosure, "Connection closed")
		if err != nil {
			c.logger.Debug("WebSocket close error (may be expected)", zap.Error(err))
		}

		c.state.Store(int32(ConnectionClosed))
		c.opts.Metrics.RecordConnectionEnd(context.Background(), time.Since(c.started))
	})
}

// Close closes the client with the given status. The reader then exits and
// Serve cleans up through its normal path.
func (c *Connection) Close(code websocket.StatusCode, reason string) {
	c.logger.Debug("Closing connection",
		zap.Int("close_code", int(code)),
		zap.String("reason", reason),
	)

	err := c.conn.Close(code, reason)
	if err != nil {
		c.logger.Debug("Error closing WebSocket", zap.Error(err))
	}
}
