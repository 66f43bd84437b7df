package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bietl/internal/config"
	"bietl/internal/logging"
	"bietl/internal/metrics"
	"bietl/internal/metrics/datadog"
	"bietl/internal/metrics/prompush"
)

const metricsJob = "bietl"

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bietl COMMAND [args]",
		Short:         "Sync BI datasets into a relational database",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	cmd.PersistentFlags().String("env-file", ".env", "dotenv file to seed the environment from; missing files are ignored")

	cmd.AddCommand(runCmd(), scheduleCmd(), validateCmd(), datasetsCmd())
	return cmd
}

// app is the state shared by commands that run batches.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	close func()
}

// loadConfig reads the --env-file flag and the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return nil, err
	}
	return config.Load(envFile)
}

// setup loads and validates configuration, then builds the logger and the
// metrics backend. Warnings are logged; errors stop the command.
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	issues := config.Validate(cfg)
	if config.HasErrors(issues) {
		printIssues(cmd, issues)
		return nil, fmt.Errorf("configuration is invalid")
	}

	log, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	for _, iss := range issues {
		log.Warn("configuration warning", zap.String("variable", iss.Path), zap.String("message", iss.Message))
	}

	closeMetrics := setupMetrics(cfg.Metrics, log)
	return &app{
		cfg: cfg,
		log: log,
		close: func() {
			closeMetrics()
			closeLog()
		},
	}, nil
}

// setupMetrics installs the configured backend. A backend that cannot be
// created leaves the no-op backend in place.
func setupMetrics(m config.Metrics, log *zap.Logger) func() {
	switch m.Backend {
	case "prometheus":
		b, err := prompush.NewBackend(metricsJob, m.PushgatewayURL)
		if err != nil {
			log.Warn("metrics: failed to init prom push backend; using nop", zap.Error(err))
			return func() {}
		}
		log.Info("metrics enabled", zap.String("backend", m.Backend), zap.String("url", m.PushgatewayURL))
		metrics.SetBackend(b)
		return func() {}

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       m.DogStatsDAddr,
			Namespace:  "bietl.",
			GlobalTags: []string{"service:bietl"},
		})
		if err != nil {
			log.Warn("metrics: failed to init datadog backend; using nop", zap.Error(err))
			return func() {}
		}
		log.Info("metrics enabled", zap.String("backend", m.Backend), zap.String("addr", m.DogStatsDAddr))
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				log.Warn("metrics: close datadog client", zap.Error(err))
			}
		}

	default:
		log.Debug("metrics disabled", zap.String("backend", m.Backend))
		return func() {}
	}
}

func printIssues(cmd *cobra.Command, issues []config.Issue) {
	for _, iss := range issues {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
}
