package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/tsarna/oscweb/pkg/oscweb/o11y"
	"github.com/tsarna/oscweb/pkg/oscweb/osc"
	"github.com/tsarna/oscweb/pkg/oscweb/relay"
	"github.com/tsarna/oscweb/pkg/oscweb/transform"
	"go.uber.org/zap"
)

const (
	DefaultOSCListenAddress = "127.0.0.1:4002"
	DefaultOSCPeerAddress   = "127.0.0.1:4000"
	DefaultWebSocketAddress = "127.0.0.1:8002"
	DefaultPath             = "/"

	// DefaultQueueSize is the number of broadcasts buffered per client before
	// further broadcasts to that client are dropped.
	DefaultQueueSize = relay.DefaultQueueSize

	// DefaultPingInterval is the interval between ping frames sent to clients.
	DefaultPingInterval = relay.DefaultPingInterval

	// DefaultWriteTimeout bounds each write to a client.
	DefaultWriteTimeout = relay.DefaultWriteTimeout

	// DefaultReadLimit is the largest frame accepted from a client.
	DefaultReadLimit = relay.DefaultReadLimit
)

// Config holds the configuration for creating a bridge Server.
// Use NewConfig() to create a new configuration and chain methods to set the
// parameters before calling Build().
type Config struct {
	logger             *zap.Logger
	oscListenAddress   string
	oscPeerAddress     string
	webSocketAddress   string
	path               string
	queueSize          int
	pingInterval       time.Duration
	writeTimeout       time.Duration
	readLimit          int64
	originPatterns     []string
	inboundTransforms  []transform.DocumentTransformFunc
	outboundTransforms []transform.DocumentTransformFunc
	staticDirs         map[string]string
	clientCountAddress string
	heartbeats         []Heartbeat
	metricsProvider    o11y.MetricsProvider
	tracingProvider    o11y.TracingProvider
}

// NewConfig creates a new Config with the default addresses.
//
// Example:
//
//	srv, err := server.NewConfig().
//	    WithLogger(logger).
//	    WithOSCListenAddress("0.0.0.0:9000").
//	    WithOSCPeerAddress("192.168.1.20:9001").
//	    WithStaticDir("/", "./www").
//	    Build()
func NewConfig() *Config {
	return &Config{
		oscListenAddress: DefaultOSCListenAddress,
		oscPeerAddress:   DefaultOSCPeerAddress,
		webSocketAddress: DefaultWebSocketAddress,
		path:             DefaultPath,
		queueSize:        DefaultQueueSize,
		pingInterval:     DefaultPingInterval,
		writeTimeout:     DefaultWriteTimeout,
		readLimit:        DefaultReadLimit,
		staticDirs:       make(map[string]string),
	}
}

// WithLogger sets the Logger. A logger is required.
func (c *Config) WithLogger(logger *zap.Logger) *Config {
	c.logger = logger
	return c
}

// WithOSCListenAddress sets the UDP address OSC datagrams are received on.
// The same socket is used to send to the peer.
//
// Default: 127.0.0.1:4002
func (c *Config) WithOSCListenAddress(addr string) *Config {
	c.oscListenAddress = addr
	return c
}

// WithOSCPeerAddress sets the UDP address messages from clients are sent to.
//
// Default: 127.0.0.1:4000
func (c *Config) WithOSCPeerAddress(addr string) *Config {
	c.oscPeerAddress = addr
	return c
}

// WithWebSocketAddress sets the TCP address of the HTTP listener.
//
// Default: 127.0.0.1:8002
func (c *Config) WithWebSocketAddress(addr string) *Config {
	c.webSocketAddress = addr
	return c
}

// WithPath sets the URL path of the WebSocket endpoint.
//
// Default: /
func (c *Config) WithPath(path string) *Config {
	c.path = path
	return c
}

// WithQueueSize sets the per-client outbound queue size. Must be positive.
//
// Default: 256
func (c *Config) WithQueueSize(size int) *Config {
	if size > 0 {
		c.queueSize = size
	}
	return c
}

// WithPingInterval sets the interval between ping frames. Set to 0 to
// disable pings.
//
// Default: 30 seconds
func (c *Config) WithPingInterval(interval time.Duration) *Config {
	if interval >= 0 {
		c.pingInterval = interval
	}
	return c
}

// WithWriteTimeout sets the timeout of each write to a client.
//
// Default: 10 seconds
func (c *Config) WithWriteTimeout(timeout time.Duration) *Config {
	if timeout > 0 {
		c.writeTimeout = timeout
	}
	return c
}

// WithReadLimit sets the largest frame, in bytes, accepted from a client.
//
// Default: 32768
func (c *Config) WithReadLimit(limit int64) *Config {
	if limit > 0 {
		c.readLimit = limit
	}
	return c
}

// WithOriginPatterns enables origin checking and accepts cross-origin
// requests whose host matches one of the patterns (path.Match syntax). With
// no patterns origin checking is disabled entirely.
func (c *Config) WithOriginPatterns(patterns ...string) *Config {
	c.originPatterns = append([]string(nil), patterns...)
	return c
}

// WithInboundTransforms sets the transforms applied to OSC messages before
// they are broadcast.
func (c *Config) WithInboundTransforms(transforms ...transform.DocumentTransformFunc) *Config {
	c.inboundTransforms = append([]transform.DocumentTransformFunc(nil), transforms...)
	return c
}

// WithOutboundTransforms sets the transforms applied to client documents
// before they are encoded and sent to the peer.
func (c *Config) WithOutboundTransforms(transforms ...transform.DocumentTransformFunc) *Config {
	c.outboundTransforms = append([]transform.DocumentTransformFunc(nil), transforms...)
	return c
}

// WithStaticDir serves directory under urlPath from the same HTTP listener.
// May be called more than once.
func (c *Config) WithStaticDir(urlPath, directory string) *Config {
	c.staticDirs[urlPath] = directory
	return c
}

// WithClientCountAddress makes the server send "<address> <count>" to the
// peer whenever a client connects or disconnects. Empty disables it.
func (c *Config) WithClientCountAddress(address string) *Config {
	c.clientCountAddress = address
	return c
}

// WithHeartbeat emits msg to the peer and to every client on schedule. May be
// called more than once.
//
// Example:
//
//	config.WithHeartbeat("@every 5s", osc.NewMessage("/oscweb/alive"))
func (c *Config) WithHeartbeat(schedule string, msg osc.Message) *Config {
	c.heartbeats = append(c.heartbeats, Heartbeat{Schedule: schedule, Message: msg})
	return c
}

// WithMetricsProvider sets the metrics provider. Optional.
func (c *Config) WithMetricsProvider(provider o11y.MetricsProvider) *Config {
	c.metricsProvider = provider
	return c
}

// WithTracingProvider sets the tracing provider. Optional.
func (c *Config) WithTracingProvider(provider o11y.TracingProvider) *Config {
	c.tracingProvider = provider
	return c
}

// IsValid checks the configuration. Returns nil if it is valid, or an error
// describing what is missing or wrong.
func (c *Config) IsValid() error {
	var missing []string
	if c.logger == nil {
		missing = append(missing, "Logger")
	}
	if c.oscListenAddress == "" {
		missing = append(missing, "OSCListenAddress")
	}
	if c.oscPeerAddress == "" {
		missing = append(missing, "OSCPeerAddress")
	}
	if c.webSocketAddress == "" {
		missing = append(missing, "WebSocketAddress")
	}

	if len(missing) > 0 {
		return fmt.Errorf("invalid server configuration, missing: %v", missing)
	}

	if !strings.HasPrefix(c.path, "/") {
		return fmt.Errorf("invalid server configuration: path %q must start with /", c.path)
	}
	if c.clientCountAddress != "" && !strings.HasPrefix(c.clientCountAddress, "/") {
		return fmt.Errorf("invalid server configuration: client count address %q must start with /", c.clientCountAddress)
	}
	mounts := make(map[string]string, len(c.staticDirs))
	for urlPath, dir := range c.staticDirs {
		if !strings.HasPrefix(urlPath, "/") || strings.Contains(urlPath, " ") {
			return fmt.Errorf("invalid server configuration: static path %q", urlPath)
		}
		mount := strings.TrimSuffix(urlPath, "/") + "/"
		if other, ok := mounts[mount]; ok {
			return fmt.Errorf("invalid server configuration: static paths %q and %q overlap", other, urlPath)
		}
		mounts[mount] = urlPath
		if dir == "" {
			return fmt.Errorf("invalid server configuration: static path %q has no directory", urlPath)
		}
	}

	for _, hb := range c.heartbeats {
		if err := ValidateSchedule(hb.Schedule); err != nil {
			return fmt.Errorf("invalid server configuration: heartbeat schedule %q: %w", hb.Schedule, err)
		}
		if !strings.HasPrefix(hb.Message.Address, "/") {
			return fmt.Errorf("invalid server configuration: heartbeat address %q must start with /", hb.Message.Address)
		}
	}

	return nil
}

// Build creates a Server from the configuration. Nothing is bound until
// Start is called.
func (c *Config) Build() (*Server, error) {
	if err := c.IsValid(); err != nil {
		return nil, err
	}

	return newServer(c), nil
}

func (c *Config) connectionOptions(metrics *relay.Metrics) relay.ConnectionOptions {
	pingInterval := c.pingInterval
	if pingInterval == 0 {
		pingInterval = -1
	}

	return relay.ConnectionOptions{
		QueueSize:    c.queueSize,
		PingInterval: pingInterval,
		WriteTimeout: c.writeTimeout,
		ReadLimit:    c.readLimit,
		Transforms:   c.outboundTransforms,
		Logger:       c.logger,
		Metrics:      metrics,
		Tracing:      c.tracingProvider,
	}
}
