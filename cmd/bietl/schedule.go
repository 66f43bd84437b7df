package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"bietl/internal/config"
	"bietl/internal/runlock"
	"bietl/internal/runner"
	"bietl/internal/scheduler"
)

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run batches on a cron schedule until interrupted",
		Long: `Run batches on a cron schedule until SIGINT or SIGTERM.

The schedule comes from --cron or SCHEDULE and accepts five-field cron
expressions and descriptors such as "@every 30m". A trigger that fires
while the previous batch is still running is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			spec, _ := cmd.Flags().GetString("cron")
			if spec == "" {
				spec = a.cfg.Schedule.Spec
			}
			runNow, _ := cmd.Flags().GetBool("run-now")
			names, _ := cmd.Flags().GetString("datasets")

			s, err := scheduler.New(spec, a.cfg.Schedule.RunTimeout, a.log)
			if err != nil {
				return err
			}

			r := runner.New(a.cfg, a.log)
			job := func(ctx context.Context) error {
				_, err := r.Run(ctx, config.SplitList(names))
				if errors.Is(err, runlock.ErrLocked) {
					return nil
				}
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return s.Run(ctx, job, runNow)
		},
	}
	cmd.Flags().String("cron", "", "cron expression (default: SCHEDULE)")
	cmd.Flags().Bool("run-now", false, "run a batch immediately instead of waiting for the first trigger")
	cmd.Flags().String("datasets", "", "comma-separated dataset names (default: DATASETS, or all)")
	return cmd
}
