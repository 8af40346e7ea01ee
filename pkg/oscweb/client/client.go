// Package client is a WebSocket client for the bridge: it sends documents
// that the bridge forwards as OSC, and receives the documents the bridge
// broadcasts.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/tsarna/oscweb/pkg/oscweb/osc"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by Send when the client is not connected.
var ErrNotConnected = errors.New("client is not connected")

// DocumentHandler receives broadcast documents, one at a time, in arrival
// order.
type DocumentHandler func(ctx context.Context, doc osc.Document)

// Client is a connection to a bridge. It is safe for concurrent use.
type Client struct {
	// Configuration
	url          string
	logger       *zap.Logger
	dialTimeout  time.Duration
	writeTimeout time.Duration
	headers      map[string][]string
	handler      DocumentHandler

	// Connection state
	conn    *websocket.Conn
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.RWMutex
	started atomic.Bool
	done    chan struct{}
	err     error
}

// Connect dials the bridge and starts reading broadcasts.
func (c *Client) Connect(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("client is already started")
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, c.dialTimeout)
	defer dialCancel()

	dialOptions := &websocket.DialOptions{}
	if c.headers != nil {
		dialOptions.HTTPHeader = make(map[string][]string, len(c.headers))
		for key, values := range c.headers {
			dialOptions.HTTPHeader[key] = values
		}
	}

	conn, _, err := websocket.Dial(dialCtx, c.url, dialOptions)
	if err != nil {
		c.started.Store(false)
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.done = make(chan struct{})
	c.err = nil
	c.mu.Unlock()

	c.logger.Info("Connected to bridge", zap.String("url", c.url))

	go c.readLoop(conn)

	return nil
}

// Send writes doc as one text frame.
func (c *Client) Send(ctx context.Context, doc osc.Document) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	data, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send document: %w", err)
	}

	c.logger.Debug("Sent document", zap.String("address", doc.Address))
	return nil
}

// SendMessage sends msg in its JSON form.
func (c *Client) SendMessage(ctx context.Context, msg osc.Message) error {
	return c.Send(ctx, osc.DecodeOSC(msg))
}

// Done returns a channel that is closed when the connection ends. It is nil
// before Connect.
func (c *Client) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.done
}

// Err returns why the connection ended, or nil if it ended with a normal
// closure or is still open.
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Close closes the connection and waits for the read loop to stop. Closing a
// client that is not connected is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	err := conn.Close(websocket.StatusNormalClosure, "client disconnect")
	<-done

	if websocket.CloseStatus(err) != -1 || errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.finish()

	for {
		_, data, err := conn.Read(c.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure {
				c.logger.Debug("Bridge connection closed")
				return
			}

			c.logger.Info("Bridge connection ended", zap.Error(err), zap.Int("close_status", int(status)))
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}

		if c.handler == nil {
			continue
		}

		doc, err := osc.ParseDocument(data)
		if err != nil {
			c.logger.Warn("Ignoring malformed document from bridge", zap.Error(err))
			continue
		}

		c.handler(c.ctx, doc)
	}
}

func (c *Client) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancel()
	c.conn.CloseNow()
	c.conn = nil
	close(c.done)
	c.started.Store(false)
}
