package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tsarna/oscweb/pkg/oscweb/client"
	"github.com/tsarna/oscweb/pkg/oscweb/osc"
	"go.uber.org/zap"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <websocket-url>",
	Short: "Print the messages a bridge broadcasts",
	Long: `Connect to a bridge as a WebSocket client and print every broadcast
message to stdout, one per line as the address and the JSON argument list
separated by a tab.

Examples:
  oscweb monitor ws://127.0.0.1:8002/`,
	Args: cobra.ExactArgs(1),
	RunE: runMonitor,
}

var (
	monitorDialTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().DurationVar(&monitorDialTimeout, "dial-timeout", 10*time.Second, "WebSocket dial timeout")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	// Setup logger
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wsURL := args[0]
	out := cmd.OutOrStdout()

	wsClient, err := client.NewClient().
		WithURL(wsURL).
		WithLogger(logger).
		WithDialTimeout(monitorDialTimeout).
		WithHandler(func(ctx context.Context, doc osc.Document) {
			printDocument(out, logger, doc)
		}).
		Build()
	if err != nil {
		return fmt.Errorf("failed to create WebSocket client: %w", err)
	}

	if err := wsClient.Connect(ctx); err != nil {
		return err
	}

	logger.Info("Listening for messages... (Press Ctrl+C to exit)", zap.String("url", wsURL))

	select {
	case <-ctx.Done():
		logger.Debug("Signal received, exiting")
		if err := wsClient.Close(); err != nil {
			logger.Warn("Error during client disconnect", zap.Error(err))
		}
		return nil

	case <-wsClient.Done():
		return wsClient.Err()
	}
}

func printDocument(w io.Writer, logger *zap.Logger, doc osc.Document) {
	v := doc.V
	if v == nil {
		v = []any{}
	}

	jsonBytes, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(w, "%s\t<error marshaling JSON: %v>\n", doc.Address, err)
		logger.Warn("Failed to marshal arguments to JSON",
			zap.String("address", doc.Address),
			zap.Error(err))
		return
	}
	fmt.Fprintf(w, "%s\t%s\n", doc.Address, jsonBytes)
}
