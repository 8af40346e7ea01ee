package client

import (
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultDialTimeout  = 30 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// ClientBuilder provides a fluent interface for building bridge clients.
type ClientBuilder struct {
	url          string
	logger       *zap.Logger
	dialTimeout  time.Duration
	writeTimeout time.Duration
	headers      map[string][]string // Custom HTTP headers for the WebSocket handshake
	handler      DocumentHandler
}

// NewClient creates a new client builder.
func NewClient() *ClientBuilder {
	return &ClientBuilder{
		dialTimeout:  DefaultDialTimeout,
		writeTimeout: DefaultWriteTimeout,
		logger:       zap.NewNop(),
	}
}

// WithURL sets the bridge URL, e.g. ws://127.0.0.1:8002/.
func (b *ClientBuilder) WithURL(url string) *ClientBuilder {
	b.url = url
	return b
}

// WithLogger sets the logger for the client.
func (b *ClientBuilder) WithLogger(logger *zap.Logger) *ClientBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithDialTimeout sets the timeout for establishing the connection.
func (b *ClientBuilder) WithDialTimeout(timeout time.Duration) *ClientBuilder {
	if timeout > 0 {
		b.dialTimeout = timeout
	}
	return b
}

// WithWriteTimeout bounds each Send.
func (b *ClientBuilder) WithWriteTimeout(timeout time.Duration) *ClientBuilder {
	if timeout > 0 {
		b.writeTimeout = timeout
	}
	return b
}

// WithHeader sets a single HTTP header for the WebSocket handshake.
func (b *ClientBuilder) WithHeader(key, value string) *ClientBuilder {
	if b.headers == nil {
		b.headers = make(map[string][]string)
	}
	b.headers[key] = []string{value}
	return b
}

// WithHandler sets the function called for every document the bridge
// broadcasts. Without a handler broadcasts are read and discarded.
func (b *ClientBuilder) WithHandler(handler DocumentHandler) *ClientBuilder {
	b.handler = handler
	return b
}

// IsValid checks that all required configuration is present.
func (b *ClientBuilder) IsValid() error {
	if b.url == "" {
		return fmt.Errorf("URL is required")
	}

	u, err := url.Parse(b.url)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("invalid URL scheme %q, expected ws or wss", u.Scheme)
	}

	return nil
}

// Build creates a new client with the configured options.
func (b *ClientBuilder) Build() (*Client, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	return &Client{
		url:          b.url,
		logger:       b.logger,
		dialTimeout:  b.dialTimeout,
		writeTimeout: b.writeTimeout,
		headers:      b.headers,
		handler:      b.handler,
	}, nil
}
