package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/devharvest/internal/pipeline"
)

// newFetchCmd creates the 'fetch' subcommand, which runs the profile
// stage's claim loop. Safe to run from many processes at once.
func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetches full profiles for discovered usernames",
		Long: `Claims batches of unprocessed usernames and resolves each into a
full profile: account details, recent repositories and social links
classified from the bio and blog fields. Claimed items that this process
dies holding are released to other workers after the stale timeout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			w, err := buildFetchWorker(a)
			if err != nil {
				return err
			}
			defer logStageSummary(a, pipeline.StageProfile)

			if err := w.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
