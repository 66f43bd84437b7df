package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bietl/internal/config"
	"bietl/internal/runlock"
	"bietl/internal/runner"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one batch and exit",
		Long: `Run one batch of datasets and exit.

Datasets run one after another; a failing dataset does not stop the others.
The exit code is 1 when any dataset failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			names, err := cmd.Flags().GetString("datasets")
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, a.cfg.Schedule.RunTimeout)
			defer cancel()

			_, err = runner.New(a.cfg, a.log).Run(ctx, config.SplitList(names))
			if errors.Is(err, runlock.ErrLocked) {
				// Another batch is doing the work.
				return nil
			}
			if err != nil {
				a.log.Error("batch failed", zap.Error(err))
			}
			return err
		},
	}
	cmd.Flags().String("datasets", "", "comma-separated dataset names (default: DATASETS, or all)")
	return cmd
}
