// Package cmd defines and implements the CLI commands for the devharvest executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/devharvest/internal/app"
	"github.com/JakeFAU/devharvest/internal/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It's a variable so tests can
// replace it with a factory returning a fake container.
var newApp = func(ctx context.Context, cfgPath string) (*app.App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command. The application
// container is built after flags are parsed and stored in the command
// context for subcommands to use.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devharvest",
		Short: "Discovers and profiles GitHub developers at scale",
		Long: `devharvest builds a database of GitHub developer profiles in three
phases: discover usernames via the search API, fetch full profiles, and
enhance stored social links. Work is coordinated through a status-tagged
queue in Postgres, so any number of processes can run the same phase
concurrently without stepping on each other.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A .env file is a development convenience; absence is fine.
			_ = godotenv.Load()

			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: env and built-in defaults)")

	cmd.AddCommand(
		newMigrateCmd(),
		newDiscoverCmd(),
		newFetchCmd(),
		newEnhanceCmd(),
		newRunCmd(),
		newScheduleCmd(),
		newServeCmd(),
		newStatsCmd(),
	)

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context; stages finish their in-flight item and release cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(130)
		}
		os.Exit(1)
	}
}
