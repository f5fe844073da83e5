package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/devharvest/internal/api"
	"github.com/JakeFAU/devharvest/internal/scheduler"
)

// newScheduleCmd creates the 'schedule' subcommand: the pipeline phases
// as recurring jobs, with the HTTP observability surface served
// alongside for the lifetime of the process.
func newScheduleCmd() *cobra.Command {
	var immediate bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Runs the pipeline on a schedule",
		Long: `Keeps the process alive and fires the discover, fetch and enhance
phases on the configured trigger: a fixed interval or a daily clock
time. Health, stats and Prometheus metrics are served over HTTP while
the scheduler runs.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			if err := a.Store.Migrate(cmd.Context()); err != nil {
				return err
			}

			discovery, err := buildDiscovery(a)
			if err != nil {
				return err
			}
			jobs := []scheduler.Job{
				{Name: "discover", Run: discovery.Run},
				{Name: "fetch", Run: func(ctx context.Context) error {
					w, err := buildFetchWorker(a)
					if err != nil {
						return err
					}
					return w.Run(ctx)
				}},
				{Name: "enhance", Run: func(ctx context.Context) error {
					w, err := buildEnhanceWorker(a)
					if err != nil {
						return err
					}
					return w.Run(ctx)
				}},
			}

			sched, err := scheduler.New(scheduler.Config{
				Mode:     a.Cfg.Schedule.Mode,
				Interval: a.Cfg.Schedule.Interval,
				At:       a.Cfg.Schedule.At,
			}, jobs, a.Logger)
			if err != nil {
				return err
			}

			server := api.NewServer(a.Store, a.Metrics, a.Cfg.Server.Port, a.Logger)
			go func() {
				if err := server.Start(cmd.Context()); err != nil {
					a.Logger.Error("http server exited", zap.Error(err))
				}
			}()

			if immediate {
				sched.RunOnce(cmd.Context())
			}
			if err := sched.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&immediate, "immediate", false, "fire the job list once before waiting for the first trigger")
	return cmd
}
