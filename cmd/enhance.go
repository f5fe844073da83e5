package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/devharvest/internal/pipeline"
)

// newEnhanceCmd creates the 'enhance' subcommand, which verifies stored
// social links for already-profiled developers.
func newEnhanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enhance",
		Short: "Verifies social links for profiled developers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			w, err := buildEnhanceWorker(a)
			if err != nil {
				return err
			}
			defer logStageSummary(a, pipeline.StageSocial)

			if err := w.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
