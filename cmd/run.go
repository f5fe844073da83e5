package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/devharvest/internal/app"
	"github.com/JakeFAU/devharvest/internal/pipeline"
)

// newRunCmd creates the 'run' subcommand: migrate, discover, fetch and
// enhance in sequence, pausing for confirmation between phases unless
// --yes is given.
func newRunCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the full pipeline end to end",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			err = runPipeline(cmd.Context(), a, yes)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "run all phases without confirmation prompts")
	return cmd
}

func runPipeline(ctx context.Context, a *app.App, yes bool) error {
	if err := a.Store.Migrate(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	discovery, err := buildDiscovery(a)
	if err != nil {
		return err
	}
	if err := discovery.Run(ctx); err != nil {
		return fmt.Errorf("discovery phase: %w", err)
	}
	logStageSummary(a, pipeline.StageDiscovery)

	if !confirm("Proceed with profile fetching?", yes) {
		a.Logger.Info("pipeline stopped after discovery")
		return nil
	}
	fetchWorker, err := buildFetchWorker(a)
	if err != nil {
		return err
	}
	if err := fetchWorker.Run(ctx); err != nil {
		return fmt.Errorf("profile phase: %w", err)
	}
	logStageSummary(a, pipeline.StageProfile)

	if !confirm("Proceed with social enhancement?", yes) {
		a.Logger.Info("pipeline stopped after profile fetching")
		return nil
	}
	enhanceWorker, err := buildEnhanceWorker(a)
	if err != nil {
		return err
	}
	if err := enhanceWorker.Run(ctx); err != nil {
		return fmt.Errorf("enhancement phase: %w", err)
	}
	logStageSummary(a, pipeline.StageSocial)

	a.Logger.Info("pipeline complete")
	return nil
}

func confirm(prompt string, yes bool) bool {
	if yes {
		return true
	}
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
