package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/tsarna/oscweb/pkg/oscweb/registry"
	"github.com/tsarna/oscweb/pkg/oscweb/relay"
	"go.uber.org/zap"
)

// Listener upgrades HTTP requests to WebSocket connections and serves each
// one with a relay.Connection. It tracks the connections it started so that
// Shutdown can close them and wait for them to finish.
type Listener struct {
	logger    *zap.Logger
	registry  *registry.Registry
	forwarder relay.Forwarder
	opts      relay.ConnectionOptions
	metrics   *relay.Metrics
	accept    *websocket.AcceptOptions

	// Connection tracking for graceful shutdown
	connections  map[*relay.Connection]struct{}
	connMutex    sync.RWMutex
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

func newListener(config *Config, reg *registry.Registry, forwarder relay.Forwarder, metrics *relay.Metrics) *Listener {
	accept := &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	}
	if len(config.originPatterns) > 0 {
		accept.OriginPatterns = config.originPatterns
	} else {
		accept.InsecureSkipVerify = true
	}

	return &Listener{
		logger:      config.logger,
		registry:    reg,
		forwarder:   forwarder,
		opts:        config.connectionOptions(metrics),
		metrics:     metrics,
		accept:      accept,
		connections: make(map[*relay.Connection]struct{}),
		shutdown:    make(chan struct{}),
	}
}

// ServeHTTP upgrades the request and blocks until the connection ends.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, l.accept)
	if err != nil {
		l.metrics.RecordConnectionError(r.Context(), "upgrade_failed")
		l.logger.Warn("Failed to accept WebSocket connection",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()),
		)
		return
	}

	connection := relay.NewConnection(r.Context(), conn, l.registry, l.forwarder, l.opts)
	if !l.track(connection) {
		l.logger.Debug("Rejecting new connection due to shutdown")
		conn.Close(websocket.StatusServiceRestart, "Server shutting down")
		return
	}

	l.logger.Info("WebSocket client connected",
		zap.String("client_id", connection.ID()),
		zap.String("remote_addr", r.RemoteAddr),
	)

	connection.Serve()

	l.connMutex.Lock()
	delete(l.connections, connection)
	l.connMutex.Unlock()

	l.logger.Info("WebSocket client disconnected",
		zap.String("client_id", connection.ID()),
		zap.String("remote_addr", r.RemoteAddr),
	)
}

// track records a connection unless shutdown has begun. Checking and
// inserting under one lock keeps Shutdown's snapshot complete.
func (l *Listener) track(connection *relay.Connection) bool {
	l.connMutex.Lock()
	defer l.connMutex.Unlock()

	select {
	case <-l.shutdown:
		return false
	default:
	}
	l.connections[connection] = struct{}{}
	return true
}

// Shutdown stops accepting new connections, closes the open ones with
// StatusGoingAway and waits until they have all finished or ctx ends.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.shutdownOnce.Do(func() {
		l.connMutex.Lock()
		close(l.shutdown)
		connections := make([]*relay.Connection, 0, len(l.connections))
		for conn := range l.connections {
			connections = append(connections, conn)
		}
		l.connMutex.Unlock()

		if len(connections) == 0 {
			return
		}

		l.logger.Info("Closing active WebSocket connections",
			zap.Int("connection_count", len(connections)),
		)

		for _, conn := range connections {
			go conn.Close(websocket.StatusGoingAway, "Server shutting down")
		}
	})

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		remaining := l.ConnectionCount()
		if remaining == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			l.logger.Warn("Shutdown timeout reached with active connections",
				zap.Int("remaining_connections", remaining),
			)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ConnectionCount returns the number of connections being served.
func (l *Listener) ConnectionCount() int {
	l.connMutex.RLock()
	defer l.connMutex.RUnlock()
	return len(l.connections)
}
