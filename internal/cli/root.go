// Package cli wires the command surface: one-shot sync, daemon mode, and
// a single-terminal connectivity test. Commands are thin callers into the
// runner and hold no sync logic of their own.
package cli

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/himalco/dairyerp/attsync/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
}

// Logger builds the root logger from the global flags.
func (o *RootOptions) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(o.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Str("service", "attsync").
		Logger()
}

// LoadConfig loads a fresh config snapshot from the configured path.
func (o *RootOptions) LoadConfig() (*config.Config, error) {
	return config.Load(o.ConfigPath)
}

// NewRootCommand creates the root command for the attsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "attsync",
		Short:         "Biometric attendance synchronization agent",
		Long:          "Collects punch events from biometric terminals and legacy exports, reconciles them into daily attendance records, and uploads them to the central ERP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "attsync.yaml", "path to the config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewDaemonCommand(opts))
	cmd.AddCommand(NewTestDeviceCommand(opts))

	return cmd
}
