package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bietl/internal/catalog"
	"bietl/internal/config"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			issues := config.Validate(cfg)
			entries, err := catalog.Select(cfg.Datasets)
			if err != nil {
				issues = append(issues, config.Issue{Severity: config.SeverityError, Path: "DATASETS", Message: err.Error()})
			}
			// Credentials only warn here: a run still syncs the datasets that have them.
			for _, e := range entries {
				for _, iss := range cfg.Require(e.Name, e.Requires...) {
					iss.Severity = config.SeverityWarning
					issues = append(issues, iss)
				}
			}

			printIssues(cmd, issues)
			if config.HasErrors(issues) {
				return fmt.Errorf("configuration is invalid")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	}
}
