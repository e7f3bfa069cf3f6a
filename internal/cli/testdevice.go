package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/himalco/dairyerp/attsync/internal/device"
)

// NewTestDeviceCommand creates the single-terminal connectivity check.
// It connects, prints device metadata and counts, and never uploads.
func NewTestDeviceCommand(opts *RootOptions) *cobra.Command {
	var (
		address string
		port    int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "test-device",
		Short: "Test connectivity to a single terminal without syncing",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.Logger()

			conn := device.NewConnector(address, address, port, timeout, logger)
			defer conn.Disconnect()

			if !conn.Connect(cmd.Context()) {
				return fmt.Errorf("could not connect to terminal %s:%d", address, port)
			}

			meta := conn.Metadata()
			identities := conn.ListIdentities()
			events := conn.FetchEvents()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "connected to %s:%d\n", address, port)

			keys := make([]string, 0, len(meta))
			for k := range meta {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "  %s: %s\n", k, meta[k])
			}
			fmt.Fprintf(out, "  enrolled identities: %d\n", len(identities))
			fmt.Fprintf(out, "  raw punch events: %d\n", len(events))
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "terminal address")
	cmd.Flags().IntVar(&port, "port", 4370, "terminal port")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "dial timeout")
	cmd.MarkFlagRequired("address")

	return cmd
}
