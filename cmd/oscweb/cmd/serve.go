package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tsarna/oscweb/pkg/oscweb/config"
	"github.com/tsarna/oscweb/pkg/oscweb/otel"
	"github.com/tsarna/oscweb/pkg/oscweb/server"
	"go.uber.org/zap"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve [config-files-or-directories...]",
	Short: "Start the bridge",
	Long: `Start the bridge, optionally loading HCL configuration files or directories.

Without configuration the bridge listens for OSC on 127.0.0.1:4002, forwards
client messages to 127.0.0.1:4000 and accepts WebSocket clients on
ws://127.0.0.1:8002/. Flags override values from configuration files.

Examples:
  oscweb serve
  oscweb serve bridge.hcl
  oscweb serve ./configs/ --osc-peer 192.168.1.20:9000
  oscweb serve --static-dir /ui=./www --ws-listen 0.0.0.0:8002`,
	RunE: runServe,
}

var (
	oscListen       string
	oscPeer         string
	wsListen        string
	wsPath          string
	staticDirs      []string
	shutdownTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&oscListen, "osc-listen", server.DefaultOSCListenAddress, "UDP address to receive OSC messages on")
	serveCmd.Flags().StringVar(&oscPeer, "osc-peer", server.DefaultOSCPeerAddress, "UDP address to forward client messages to")
	serveCmd.Flags().StringVar(&wsListen, "ws-listen", server.DefaultWebSocketAddress, "TCP address to accept WebSocket clients on")
	serveCmd.Flags().StringVar(&wsPath, "ws-path", server.DefaultPath, "HTTP path of the WebSocket endpoint")
	serveCmd.Flags().StringArrayVar(&staticDirs, "static-dir", nil, "serve a directory, as [url-path=]directory (repeatable)")
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "time allowed for graceful shutdown")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Setup logger
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting oscweb",
		zap.Strings("config-paths", args),
		zap.String("version", version),
	)

	cfg, diags := config.NewConfig().
		WithLogger(logger).
		WithSources(stringSliceToAnySlice(args)...).
		Build()
	if diags.HasErrors() {
		logger.Error("Failed to build config", zap.Error(diags))
		return diags
	}

	sc, diags := cfg.ServerConfig()
	if diags.HasErrors() {
		logger.Error("Invalid server configuration", zap.Error(diags))
		return diags
	}

	if err := applyServeFlags(cmd, sc); err != nil {
		return err
	}

	provider := otel.NewProvider("oscweb", version)
	srv, err := sc.WithMetricsProvider(provider).WithTracingProvider(provider).Build()
	if err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return err
	}

	logger.Info("Bridge running (Press Ctrl+C to exit)",
		zap.Stringer("osc", srv.OSCAddr()),
		zap.Stringer("websocket", srv.WebSocketAddr()),
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Signal received, shutting down")
	case runErr = <-srv.Err():
		logger.Error("Bridge failed, shutting down", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Error during shutdown", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	logger.Info("Shutdown complete")
	return runErr
}

// applyServeFlags overrides configuration file values with the flags the
// user actually set.
func applyServeFlags(cmd *cobra.Command, sc *server.Config) error {
	flags := cmd.Flags()

	if flags.Changed("osc-listen") {
		sc.WithOSCListenAddress(oscListen)
	}
	if flags.Changed("osc-peer") {
		sc.WithOSCPeerAddress(oscPeer)
	}
	if flags.Changed("ws-listen") {
		sc.WithWebSocketAddress(wsListen)
	}
	if flags.Changed("ws-path") {
		sc.WithPath(wsPath)
	}

	for _, spec := range staticDirs {
		urlPath, dir, err := parseStaticDir(spec)
		if err != nil {
			return err
		}
		sc.WithStaticDir(urlPath, dir)
	}

	return nil
}

// parseStaticDir splits "url-path=directory". A bare directory is served
// from "/".
func parseStaticDir(spec string) (string, string, error) {
	urlPath, dir, found := strings.Cut(spec, "=")
	if !found {
		urlPath, dir = "/", spec
	}
	if dir == "" {
		return "", "", fmt.Errorf("--static-dir %q: directory is empty", spec)
	}
	if !strings.HasPrefix(urlPath, "/") {
		return "", "", fmt.Errorf("--static-dir %q: url path must start with \"/\"", spec)
	}
	return urlPath, dir, nil
}

// Helper to convert []string to []any
func stringSliceToAnySlice(strs []string) []any {
	anys := make([]any, len(strs))
	for i, s := range strs {
		anys[i] = s
	}
	return anys
}
