// Package server wires the bridge together: one UDP socket for OSC, one HTTP
// listener for WebSocket clients and the registry connecting them.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tsarna/oscweb/pkg/oscweb/osc"
	"github.com/tsarna/oscweb/pkg/oscweb/registry"
	"github.com/tsarna/oscweb/pkg/oscweb/relay"
	"go.uber.org/zap"
)

// ErrServerClosed is returned by Start once the server has been shut down.
var ErrServerClosed = errors.New("oscweb: server closed")

type serverState int

const (
	stateNew serverState = iota
	stateRunning
	stateClosed
)

// Server is one running bridge. Several may run in a process as long as
// their addresses differ.
type Server struct {
	config   *Config
	logger   *zap.Logger
	metrics  *relay.Metrics
	registry *registry.Registry

	mu         sync.Mutex
	state      serverState
	udpConn    net.PacketConn
	peer       atomic.Pointer[relay.Peer]
	listener   *Listener
	httpServer *http.Server
	tcpAddr    net.Addr
	heartbeats *cron.Cron
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	errs       chan error
}

func newServer(config *Config) *Server {
	s := &Server{
		config:  config,
		logger:  config.logger,
		metrics: relay.NewMetrics(config.metricsProvider),
		errs:    make(chan error, 2),
	}
	s.registry = registry.New(config.logger).WithObserver(s.clientCountChanged)
	return s
}

// Registry returns the registry of connected clients.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Err returns a channel that receives a serve error if the OSC socket or the
// HTTP listener fails while running.
func (s *Server) Err() <-chan error {
	return s.errs
}

// OSCAddr returns the bound UDP address, or nil before Start.
func (s *Server) OSCAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.udpConn == nil {
		return nil
	}
	return s.udpConn.LocalAddr()
}

// WebSocketAddr returns the bound TCP address, or nil before Start.
func (s *Server) WebSocketAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tcpAddr
}

// Start binds both sockets and starts serving in the background. If either
// bind fails nothing is left open and the error is returned.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateRunning:
		return errors.New("server already started")
	case stateClosed:
		return ErrServerClosed
	}

	peerAddr, err := net.ResolveUDPAddr("udp", s.config.oscPeerAddress)
	if err != nil {
		return fmt.Errorf("failed to resolve OSC peer address %s: %w", s.config.oscPeerAddress, err)
	}

	udpConn, err := net.ListenPacket("udp", s.config.oscListenAddress)
	if err != nil {
		return fmt.Errorf("failed to bind OSC address %s: %w", s.config.oscListenAddress, err)
	}

	tcpListener, err := net.Listen("tcp", s.config.webSocketAddress)
	if err != nil {
		udpConn.Close()
		return fmt.Errorf("failed to bind WebSocket address %s: %w", s.config.webSocketAddress, err)
	}

	heartbeats, err := s.newHeartbeatCron()
	if err != nil {
		tcpListener.Close()
		udpConn.Close()
		return err
	}

	peer := relay.NewPeer(udpConn, peerAddr, s.logger, s.metrics)
	s.peer.Store(peer)

	// Connections derive from runCtx, so cancelling it unwinds every client
	// even after its request has been hijacked.
	runCtx, cancel := context.WithCancel(ctx)

	s.listener = newListener(s.config, s.registry, peer, s.metrics)
	s.httpServer = &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger),
		BaseContext:       func(net.Listener) context.Context { return runCtx },
	}

	inbound := relay.NewInbound(udpConn, s.registry, relay.InboundOptions{
		Logger:     s.logger,
		Metrics:    s.metrics,
		Tracing:    s.config.tracingProvider,
		Transforms: s.config.inboundTransforms,
	})

	s.cancel = cancel
	s.udpConn = udpConn
	s.tcpAddr = tcpListener.Addr()
	s.state = stateRunning

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := inbound.Run(runCtx); err != nil {
			s.reportError(fmt.Errorf("OSC receive loop failed: %w", err))
		}
	}()
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(tcpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.reportError(fmt.Errorf("WebSocket server failed: %w", err))
		}
	}()

	if heartbeats != nil {
		s.heartbeats = heartbeats
		heartbeats.Start()
	}

	s.logger.Info("OSC bridge started",
		zap.Stringer("osc_listen", udpConn.LocalAddr()),
		zap.Stringer("osc_peer", peer.Addr()),
		zap.Stringer("websocket_listen", s.tcpAddr),
		zap.String("path", s.config.path),
	)

	return nil
}

// Shutdown closes every client with StatusGoingAway, waits for them to
// deregister, then releases both sockets. The wait for clients is bounded by
// ctx; the sockets are released regardless. Calling Shutdown on a server that
// is not running is a no-op.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateRunning {
		s.state = stateClosed
		s.mu.Unlock()
		return nil
	}
	s.state = stateClosed
	s.mu.Unlock()

	s.logger.Info("Shutting down OSC bridge")

	if s.heartbeats != nil {
		select {
		case <-s.heartbeats.Stop().Done():
		case <-ctx.Done():
		}
	}

	var errs []error
	if err := s.listener.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("websocket shutdown: %w", err))
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	s.cancel()
	if err := s.udpConn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, fmt.Errorf("closing OSC socket: %w", err))
	}

	s.wg.Wait()
	s.logger.Info("OSC bridge stopped")

	return errors.Join(errs...)
}

func (s *Server) reportError(err error) {
	s.logger.Error("Server error", zap.Error(err))
	select {
	case s.errs <- err:
	default:
	}
}

// clientCountChanged is the registry observer.
func (s *Server) clientCountChanged(count int) {
	ctx := context.Background()
	s.metrics.RecordConnectionActive(ctx, count)

	if s.config.clientCountAddress == "" {
		return
	}
	peer := s.peer.Load()
	if peer == nil {
		return
	}

	msg := osc.NewMessage(s.config.clientCountAddress, osc.Int32(int32(count)))
	if err := peer.Forward(ctx, msg); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return
		}
		s.logger.Warn("Failed to send client count", zap.Error(err))
	}
}

// handler builds the HTTP routing: the WebSocket endpoint plus any static
// directories. A static directory mounted on the WebSocket path still gets
// the plain HTTP requests for it.
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()

	var fallback http.Handler
	for urlPath, dir := range s.config.staticDirs {
		prefix := strings.TrimSuffix(urlPath, "/") + "/"
		files := NewLoggingMiddleware(s.logger,
			http.StripPrefix(strings.TrimSuffix(prefix, "/"), http.FileServer(http.Dir(dir))))

		if prefix == s.config.path || prefix == s.config.path+"/" {
			fallback = files
			continue
		}
		mux.Handle(prefix, files)
	}

	mux.Handle(s.config.path, &webSocketRoute{websocket: s.listener, fallback: fallback})
	return mux
}

type webSocketRoute struct {
	websocket http.Handler
	fallback  http.Handler
}

func (h *webSocketRoute) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.fallback != nil && !isWebSocketUpgrade(r) {
		h.fallback.ServeHTTP(w, r)
		return
	}
	h.websocket.ServeHTTP(w, r)
}
