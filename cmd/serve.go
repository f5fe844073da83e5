package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/devharvest/internal/api"
)

// newServeCmd creates the 'serve' subcommand, which exposes health,
// stats and Prometheus metrics over HTTP without running any stage.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the HTTP observability endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			server := api.NewServer(a.Store, a.Metrics, a.Cfg.Server.Port, a.Logger)
			if err := server.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
