// Package config provides configuration models and helpers for bietl.
//
// This file adds a lightweight linter/validator for Config values. It
// performs static checks and returns a list of issues (errors and warnings)
// that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap/zapcore"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding.
//
// Path is the environment variable the finding is about (e.g. "DB_DRIVER").
// Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// KnownDrivers are the DB_DRIVER values with a built-in backend.
var KnownDrivers = []string{"mysql", "postgres", "sqlite", "mssql"}

// Validate checks the settings every batch needs: database, HTTP policy,
// logging, schedule and metrics. Source credentials are checked per dataset
// by Require, so a missing Trello token never blocks the CRM datasets.
func Validate(c *Config) []Issue {
	var issues []Issue
	issues = append(issues, validateDB(c.DB)...)
	issues = append(issues, validateHTTP(c.HTTP)...)
	issues = append(issues, validateLog(c.Log)...)
	issues = append(issues, validateSchedule(c.Schedule)...)
	issues = append(issues, validateMetrics(c.Metrics)...)
	issues = append(issues, validateSources(c)...)
	return issues
}

func validateDB(db DB) []Issue {
	var issues []Issue

	known := false
	for _, k := range KnownDrivers {
		if db.Driver == k {
			known = true
			break
		}
	}
	if !known {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "DB_DRIVER",
			Message:  fmt.Sprintf("unknown driver %q; want one of %s", db.Driver, strings.Join(KnownDrivers, ", ")),
		})
	}

	if db.DSN == "" {
		if db.Name == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "DB_NAME",
				Message:  "DB_NAME (or DB_DSN) must be set",
			})
		}
		if db.Driver != "sqlite" && db.User == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "DB_USER",
				Message:  "DB_USER is empty; the driver default will be used",
			})
		}
	}
	if db.Port < 0 || db.Port > 65535 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "DB_PORT",
			Message:  fmt.Sprintf("port %d out of range", db.Port),
		})
	}
	if db.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "DB_BATCH_SIZE",
			Message:  fmt.Sprintf("batch size must be positive, got %d", db.BatchSize),
		})
	}
	return issues
}

func validateHTTP(h HTTP) []Issue {
	var issues []Issue
	if h.Timeout <= 0 {
		issues = append(issues, Issue{SeverityError, "HTTP_TIMEOUT", "timeout must be positive"})
	}
	if h.MaxAttempts < 1 {
		issues = append(issues, Issue{SeverityError, "RETRY_MAX_ATTEMPTS", "at least one attempt is required"})
	}
	if h.InitialBackoff <= 0 {
		issues = append(issues, Issue{SeverityError, "RETRY_INITIAL_BACKOFF", "backoff must be positive"})
	}
	if h.MaxBackoff < h.InitialBackoff {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "RETRY_MAX_BACKOFF",
			Message:  fmt.Sprintf("max backoff %s is below initial backoff %s", h.MaxBackoff, h.InitialBackoff),
		})
	}
	return issues
}

func validateLog(l Log) []Issue {
	var issues []Issue
	if _, err := zapcore.ParseLevel(l.Level); err != nil {
		issues = append(issues, Issue{SeverityError, "LOG_LEVEL", err.Error()})
	}
	if l.Format != "json" && l.Format != "console" {
		issues = append(issues, Issue{SeverityError, "LOG_FORMAT", fmt.Sprintf("format %q; want json or console", l.Format)})
	}
	return issues
}

func validateSchedule(s Schedule) []Issue {
	var issues []Issue

	sched, err := cron.ParseStandard(s.Spec)
	if err != nil {
		issues = append(issues, Issue{SeverityError, "SCHEDULE", err.Error()})
	}
	if s.RunTimeout <= 0 {
		issues = append(issues, Issue{SeverityError, "RUN_TIMEOUT", "run timeout must be positive"})
	} else if sched != nil {
		first := sched.Next(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		if interval := sched.Next(first).Sub(first); s.RunTimeout >= interval {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "RUN_TIMEOUT",
				Message:  fmt.Sprintf("run timeout %s is not below the schedule interval %s; overlapping triggers will be skipped", s.RunTimeout, interval),
			})
		}
	}
	if strings.TrimSpace(s.LockFile) == "" {
		issues = append(issues, Issue{SeverityError, "LOCK_FILE", "lock file path must not be empty"})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	switch m.Backend {
	case "", "none":
		return nil
	case "prometheus":
		if m.PushgatewayURL == "" {
			return []Issue{{SeverityError, "PUSHGATEWAY_URL", "required when METRICS_BACKEND=prometheus"}}
		}
	case "datadog":
		if m.DogStatsDAddr == "" {
			return []Issue{{SeverityError, "DOGSTATSD_ADDR", "required when METRICS_BACKEND=datadog"}}
		}
	default:
		return []Issue{{SeverityError, "METRICS_BACKEND", fmt.Sprintf("unknown backend %q; want none, prometheus or datadog", m.Backend)}}
	}
	return nil
}

func validateSources(c *Config) []Issue {
	var issues []Issue
	for key, raw := range map[string]string{
		"PH_BASE_URL":     c.PostHog.BaseURL,
		"RD_BASE_URL":     c.RDStation.BaseURL,
		"TRELLO_BASE_URL": c.Trello.BaseURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			issues = append(issues, Issue{SeverityError, key, fmt.Sprintf("%q is not an absolute URL", raw)})
		}
	}
	for key, n := range map[string]int{
		"RD_PAGE_LIMIT":     c.RDStation.PageLimit,
		"TRELLO_PAGE_LIMIT": c.Trello.PageLimit,
	} {
		if n <= 0 {
			issues = append(issues, Issue{SeverityError, key, "page limit must be positive"})
		}
	}
	for key, r := range map[string]float64{
		"PH_RATE_LIMIT":     c.PostHog.RateLimit,
		"RD_RATE_LIMIT":     c.RDStation.RateLimit,
		"TRELLO_RATE_LIMIT": c.Trello.RateLimit,
	} {
		if r < 0 {
			issues = append(issues, Issue{SeverityError, key, "rate limit must not be negative (0 disables limiting)"})
		}
	}
	sortIssues(issues)
	return issues
}

// Require reports an error for every listed variable that is empty.
// Datasets call it with the credentials they need before fetching.
func (c *Config) Require(dataset string, keys ...string) []Issue {
	var issues []Issue
	for _, k := range keys {
		v, known := c.value(k)
		switch {
		case !known:
			issues = append(issues, Issue{SeverityError, k, fmt.Sprintf("unknown variable required by %s", dataset)})
		case strings.TrimSpace(v) == "":
			issues = append(issues, Issue{SeverityError, k, fmt.Sprintf("must be set for dataset %s", dataset)})
		}
	}
	return issues
}

// value maps a credential variable to its loaded value.
func (c *Config) value(key string) (string, bool) {
	switch key {
	case "PH_TOKEN":
		return c.PostHog.Token, true
	case "PH_PROJECT_ID":
		return c.PostHog.ProjectID, true
	case "RD_CRM_TOKEN":
		return c.RDStation.Token, true
	case "RD_SDR_ID":
		return c.RDStation.SDRPipelineID, true
	case "RD_BDR_ID":
		return c.RDStation.BDRPipelineID, true
	case "TRELLO_API_KEY":
		return c.Trello.APIKey, true
	case "TRELLO_TOKEN":
		return c.Trello.Token, true
	case "TRELLO_BOARD_ID":
		return c.Trello.BoardID, true
	default:
		return "", false
	}
}

// sortIssues orders issues by path so map iteration stays deterministic.
func sortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
}
