package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/himalco/dairyerp/attsync/internal/control"
	"github.com/himalco/dairyerp/attsync/internal/runner"
)

// NewDaemonCommand creates the unattended daemon command.
func NewDaemonCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run sync cycles forever on the configured interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.Logger()

			// Fail fast on a broken config, before entering the loop.
			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			r := runner.New(opts.LoadConfig, logger)

			if cfg.ControlAddr != "" {
				api := control.NewAPI(r, logger)
				go func() {
					if err := api.Start(ctx, cfg.ControlAddr); err != nil {
						logger.Error().Err(err).Msg("control API stopped")
					}
				}()
			}

			return r.Daemon(ctx)
		},
	}
}
