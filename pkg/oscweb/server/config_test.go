package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/oscweb/pkg/oscweb/osc"
	"github.com/tsarna/oscweb/pkg/oscweb/transform"
	"go.uber.org/zap"
)

func TestConfigBuilder(t *testing.T) {
	logger := zap.NewNop()

	t.Run("defaults", func(t *testing.T) {
		c := NewConfig()
		assert.Equal(t, DefaultOSCListenAddress, c.oscListenAddress)
		assert.Equal(t, DefaultOSCPeerAddress, c.oscPeerAddress)
		assert.Equal(t, DefaultWebSocketAddress, c.webSocketAddress)
		assert.Equal(t, "/", c.path)
		assert.Equal(t, DefaultQueueSize, c.queueSize)
		assert.Equal(t, DefaultPingInterval, c.pingInterval)
		assert.Equal(t, DefaultWriteTimeout, c.writeTimeout)
		assert.Equal(t, int64(DefaultReadLimit), c.readLimit)
	})

	t.Run("fluent interface returns same config", func(t *testing.T) {
		c := NewConfig()
		assert.Same(t, c, c.WithLogger(logger))
		assert.Same(t, c, c.WithOSCListenAddress("127.0.0.1:0"))
		assert.Same(t, c, c.WithOSCPeerAddress("127.0.0.1:9"))
		assert.Same(t, c, c.WithWebSocketAddress("127.0.0.1:0"))
		assert.Same(t, c, c.WithPath("/ws"))
		assert.Same(t, c, c.WithQueueSize(10))
		assert.Same(t, c, c.WithPingInterval(time.Second))
		assert.Same(t, c, c.WithWriteTimeout(time.Second))
		assert.Same(t, c, c.WithReadLimit(1024))
		assert.Same(t, c, c.WithOriginPatterns("localhost:*"))
		assert.Same(t, c, c.WithInboundTransforms(transform.DropAddressPattern("debug/#")))
		assert.Same(t, c, c.WithOutboundTransforms(transform.AddAddressPrefix("/web")))
		assert.Same(t, c, c.WithStaticDir("/ui", "."))
		assert.Same(t, c, c.WithClientCountAddress("/clients"))
		assert.Same(t, c, c.WithHeartbeat("@every 5s", osc.NewMessage("/alive")))
		assert.Same(t, c, c.WithMetricsProvider(nil))
		assert.Same(t, c, c.WithTracingProvider(nil))
	})

	t.Run("invalid values are ignored", func(t *testing.T) {
		c := NewConfig().
			WithQueueSize(0).
			WithPingInterval(-time.Second).
			WithWriteTimeout(0).
			WithReadLimit(-1)

		assert.Equal(t, DefaultQueueSize, c.queueSize)
		assert.Equal(t, DefaultPingInterval, c.pingInterval)
		assert.Equal(t, DefaultWriteTimeout, c.writeTimeout)
		assert.Equal(t, int64(DefaultReadLimit), c.readLimit)
	})

	t.Run("zero ping interval disables pings", func(t *testing.T) {
		opts := NewConfig().WithPingInterval(0).connectionOptions(nil)
		assert.Less(t, opts.PingInterval, time.Duration(0))
	})

	t.Run("build fails without logger", func(t *testing.T) {
		_, err := NewConfig().Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Logger")
	})

	t.Run("build fails with empty addresses", func(t *testing.T) {
		_, err := NewConfig().WithLogger(logger).WithOSCPeerAddress("").WithWebSocketAddress("").Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "OSCPeerAddress")
		assert.Contains(t, err.Error(), "WebSocketAddress")
	})

	t.Run("build validates paths", func(t *testing.T) {
		_, err := NewConfig().WithLogger(logger).WithPath("ws").Build()
		assert.Error(t, err)

		_, err = NewConfig().WithLogger(logger).WithClientCountAddress("clients").Build()
		assert.Error(t, err)

		_, err = NewConfig().WithLogger(logger).WithStaticDir("ui", ".").Build()
		assert.Error(t, err)

		_, err = NewConfig().WithLogger(logger).WithStaticDir("/ui", "").Build()
		assert.Error(t, err)

		_, err = NewConfig().WithLogger(logger).WithStaticDir("/ui", "a").WithStaticDir("/ui/", "b").Build()
		assert.Error(t, err)

		_, err = NewConfig().WithLogger(logger).WithHeartbeat("every second", osc.NewMessage("/alive")).Build()
		assert.Error(t, err)

		_, err = NewConfig().WithLogger(logger).WithHeartbeat("@every 5s", osc.NewMessage("alive")).Build()
		assert.Error(t, err)
	})

	t.Run("build succeeds", func(t *testing.T) {
		srv, err := NewConfig().WithLogger(logger).Build()
		require.NoError(t, err)
		assert.NotNil(t, srv.Registry())
		assert.Nil(t, srv.OSCAddr())
		assert.Nil(t, srv.WebSocketAddr())
	})
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("@every 5s"))
	assert.NoError(t, ValidateSchedule("*/10 * * * * *"))
	assert.NoError(t, ValidateSchedule("0 9 * * MON-FRI"))
	assert.NoError(t, ValidateSchedule("CRON_TZ=UTC 0 12 * * *"))
	assert.Error(t, ValidateSchedule("whenever"))
}
