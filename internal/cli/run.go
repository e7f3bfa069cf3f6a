package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/himalco/dairyerp/attsync/internal/runner"
)

// NewRunCommand creates the one-shot sync command.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one sync cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.Logger()
			r := runner.New(opts.LoadConfig, logger)

			outcome, err := r.RunOnce(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported: %d, updated: %d, failed: %d\n",
				outcome.Created, outcome.Updated, outcome.Failed)

			if outcome.Failed > 0 || outcome.ParseFailures > 0 || outcome.SourcesFailed > 0 {
				logger.Warn().
					Int("record_failures", outcome.Failed).
					Int("parse_failures", outcome.ParseFailures).
					Int("sources_failed", outcome.SourcesFailed).
					Msg("run finished with partial failures")
			}

			// Partial progress is a successful run; only a run that could
			// not authenticate or reach any source at all exits non-zero.
			if !outcome.Success() {
				return fmt.Errorf("sync run failed: %s", firstError(outcome.Errors))
			}
			return nil
		},
	}
}

func firstError(errs []string) string {
	if len(errs) == 0 {
		return "no source was reachable"
	}
	return errs[0]
}
