package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is reported to the OpenTelemetry provider; overridden at link time.
var version = "dev"

var (
	verbose  bool
	debug    bool
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "oscweb",
	Short: "OSC to WebSocket bridge",
	Long: `oscweb relays Open Sound Control messages between a UDP peer and any
number of WebSocket clients.

OSC messages arriving over UDP are broadcast to every connected client as
JSON documents of the form {"address": "/synth/freq", "v": [440.0]}, and
documents sent by any client are forwarded to the peer as OSC messages.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "debug output")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
}

func setupLogger() (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(resolveLogLevel(logLevel, verbose, debug))
	config.Development = debug

	return config.Build()
}

// resolveLogLevel lets -d force debug output and -v raise the default level
// to debug, leaving an explicit --log-level alone.
func resolveLogLevel(level string, verbose, debug bool) zapcore.Level {
	if debug || (verbose && level == "info") {
		level = "debug"
	}

	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
