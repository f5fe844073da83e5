package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/devharvest/internal/pipeline"
)

// newDiscoverCmd creates the 'discover' subcommand. It walks the
// configured location and account-creation-year grid of search queries
// and inserts every found username with INITIAL status.
func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Discovers GitHub usernames via the search API",
		Long: `Runs search queries over the configured locations and account
creation years and inserts the usernames found, skipping any that are
already known. Stops when the configured target count of unprocessed
usernames is reached or the query grid is exhausted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			discovery, err := buildDiscovery(a)
			if err != nil {
				return err
			}
			defer logStageSummary(a, pipeline.StageDiscovery)

			if err := discovery.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
