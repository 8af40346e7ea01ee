package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tsarna/oscweb/pkg/oscweb/client"
	"github.com/tsarna/oscweb/pkg/oscweb/osc"
	"go.uber.org/zap"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <websocket-url> <address> [args...]",
	Short: "Send one OSC message through a bridge",
	Long: `Connect to a bridge as a WebSocket client and send one message, which the
bridge forwards to its OSC peer.

Arguments are read as JSON literals where possible, so 1 is an int32, 0.5 a
float32, true a boolean and null a nil argument. Anything else is sent as a
string.

Examples:
  oscweb send ws://127.0.0.1:8002/ /synth/freq 440.0
  oscweb send ws://127.0.0.1:8002/ /led/on 1
  oscweb send ws://127.0.0.1:8002/ /label hello '"42"'`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSend,
}

var (
	sendDialTimeout time.Duration
	sendTimeout     time.Duration
)

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().DurationVar(&sendDialTimeout, "dial-timeout", 10*time.Second, "WebSocket dial timeout")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 30*time.Second, "Total operation timeout")
}

func runSend(cmd *cobra.Command, args []string) error {
	// Setup logger
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	wsURL := args[0]
	doc := osc.Document{Address: args[1], V: parseArguments(args[2:])}

	// Reject what the bridge would drop, rather than sending it silently.
	if _, err := osc.EncodeOSC(doc); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	wsClient, err := client.NewClient().
		WithURL(wsURL).
		WithLogger(logger).
		WithDialTimeout(sendDialTimeout).
		Build()
	if err != nil {
		return fmt.Errorf("failed to create WebSocket client: %w", err)
	}

	if err := wsClient.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if closeErr := wsClient.Close(); closeErr != nil {
			logger.Warn("Error during client disconnect", zap.Error(closeErr))
		}
	}()

	if err := wsClient.Send(ctx, doc); err != nil {
		return err
	}

	logger.Info("Message sent",
		zap.String("address", doc.Address),
		zap.Any("v", doc.V),
	)

	return nil
}

func parseArguments(args []string) []any {
	values := make([]any, len(args))
	for i, arg := range args {
		values[i] = parseArgument(arg)
	}
	return values
}

// parseArgument returns arg as a JSON scalar when it is one, and as a plain
// string otherwise. Numbers stay json.Number so 1 and 1.0 remain distinct.
func parseArgument(arg string) any {
	dec := json.NewDecoder(bytes.NewReader([]byte(arg)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return arg
	}

	switch v.(type) {
	case json.Number, string, bool, nil:
		return v
	default:
		return arg
	}
}
