// Package config defines the runtime configuration of bietl.
//
// Configuration comes from the process environment, optionally seeded from
// .env files via godotenv. It is read once at startup into a Config value
// that is passed by reference to every component; nothing else in the tree
// reads environment variables.
//
// Variables already present in the environment win over .env values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration.
type Config struct {
	DB        DB
	HTTP      HTTP
	PostHog   PostHog
	RDStation RDStation
	Trello    Trello
	Log       Log
	Schedule  Schedule
	Metrics   Metrics

	// Datasets restricts a batch to these dataset names. Empty means all.
	Datasets []string
}

// DB selects and addresses the destination database.
type DB struct {
	Driver    string // DB_DRIVER: mysql, postgres, sqlite, mssql
	DSN       string // DB_DSN; when empty the discrete fields are used
	Host      string
	Port      int
	User      string
	Password  string
	Name      string
	BatchSize int // DB_BATCH_SIZE
}

// HTTP holds the shared outbound request policy.
type HTTP struct {
	Timeout        time.Duration // HTTP_TIMEOUT, per request
	MaxAttempts    int           // RETRY_MAX_ATTEMPTS, first try included
	InitialBackoff time.Duration // RETRY_INITIAL_BACKOFF
	MaxBackoff     time.Duration // RETRY_MAX_BACKOFF
}

// PostHog addresses the product-analytics query API.
type PostHog struct {
	Token     string
	ProjectID string
	BaseURL   string
	RateLimit float64 // requests per second
}

// RDStation addresses the CRM deals API.
type RDStation struct {
	Token         string
	SDRPipelineID string
	BDRPipelineID string
	BaseURL       string
	PageLimit     int
	RateLimit     float64
}

// Trello addresses the board API.
type Trello struct {
	APIKey    string
	Token     string
	BoardID   string
	BaseURL   string
	PageLimit int
	RateLimit float64
}

// Log configures the zap logger.
type Log struct {
	Level  string // debug, info, warn, error
	File   string // appended to in addition to stderr; empty disables
	Format string // json or console, for the file sink
}

// Schedule configures the in-process scheduler and run guard.
type Schedule struct {
	Spec       string        // SCHEDULE, cron expression or descriptor
	RunTimeout time.Duration // RUN_TIMEOUT, bound on one batch
	LockFile   string        // LOCK_FILE
}

// Metrics selects the metrics backend.
type Metrics struct {
	Backend        string // none, prometheus, datadog
	PushgatewayURL string
	DogStatsDAddr  string
}

// Defaults.
const (
	DefaultDBDriver       = "mysql"
	DefaultBatchSize      = 500
	DefaultHTTPTimeout    = 10 * time.Second
	DefaultMaxAttempts    = 5
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultPostHogURL     = "https://app.posthog.com"
	DefaultRDStationURL   = "https://crm.rdstation.com/api/v1"
	DefaultTrelloURL      = "https://api.trello.com/1"
	DefaultRDPageLimit    = 200
	DefaultTrelloLimit    = 1000
	DefaultSchedule       = "@every 30m"
	DefaultRunTimeout     = 25 * time.Minute
	DefaultLockFile       = "bietl.lock"
	DefaultLogFile        = "bietl.log"
)

// LookupFunc reads one variable; os.LookupEnv is the production source.
type LookupFunc func(key string) (string, bool)

// Load applies envFiles (missing files are skipped) and reads the process
// environment.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from lookup. Malformed numbers, durations or
// rates are reported together.
func FromLookup(lookup LookupFunc) (*Config, error) {
	e := env{lookup: lookup}

	cfg := &Config{
		DB: DB{
			Driver:    strings.ToLower(e.str("DB_DRIVER", DefaultDBDriver)),
			DSN:       e.str("DB_DSN", ""),
			Host:      e.str("DB_HOST", "localhost"),
			Port:      e.integer("DB_PORT", 0),
			User:      e.str("DB_USER", ""),
			Password:  e.str("DB_PASSWORD", ""),
			Name:      e.str("DB_NAME", ""),
			BatchSize: e.integer("DB_BATCH_SIZE", DefaultBatchSize),
		},
		HTTP: HTTP{
			Timeout:        e.duration("HTTP_TIMEOUT", DefaultHTTPTimeout),
			MaxAttempts:    e.integer("RETRY_MAX_ATTEMPTS", DefaultMaxAttempts),
			InitialBackoff: e.duration("RETRY_INITIAL_BACKOFF", DefaultInitialBackoff),
			MaxBackoff:     e.duration("RETRY_MAX_BACKOFF", DefaultMaxBackoff),
		},
		PostHog: PostHog{
			Token:     e.str("PH_TOKEN", ""),
			ProjectID: e.str("PH_PROJECT_ID", ""),
			BaseURL:   strings.TrimRight(e.str("PH_BASE_URL", DefaultPostHogURL), "/"),
			RateLimit: e.number("PH_RATE_LIMIT", 1),
		},
		RDStation: RDStation{
			Token:         e.str("RD_CRM_TOKEN", ""),
			SDRPipelineID: e.str("RD_SDR_ID", ""),
			BDRPipelineID: e.str("RD_BDR_ID", ""),
			BaseURL:       strings.TrimRight(e.str("RD_BASE_URL", DefaultRDStationURL), "/"),
			PageLimit:     e.integer("RD_PAGE_LIMIT", DefaultRDPageLimit),
			RateLimit:     e.number("RD_RATE_LIMIT", 2),
		},
		Trello: Trello{
			APIKey:    e.str("TRELLO_API_KEY", ""),
			Token:     e.str("TRELLO_TOKEN", ""),
			BoardID:   e.str("TRELLO_BOARD_ID", ""),
			BaseURL:   strings.TrimRight(e.str("TRELLO_BASE_URL", DefaultTrelloURL), "/"),
			PageLimit: e.integer("TRELLO_PAGE_LIMIT", DefaultTrelloLimit),
			RateLimit: e.number("TRELLO_RATE_LIMIT", 8),
		},
		Log: Log{
			Level:  strings.ToLower(e.str("LOG_LEVEL", "info")),
			File:   e.str("LOG_FILE", DefaultLogFile),
			Format: strings.ToLower(e.str("LOG_FORMAT", "json")),
		},
		Schedule: Schedule{
			Spec:       e.str("SCHEDULE", DefaultSchedule),
			RunTimeout: e.duration("RUN_TIMEOUT", DefaultRunTimeout),
			LockFile:   e.str("LOCK_FILE", DefaultLockFile),
		},
		Metrics: Metrics{
			Backend:        strings.ToLower(e.str("METRICS_BACKEND", "none")),
			PushgatewayURL: e.str("PUSHGATEWAY_URL", ""),
			DogStatsDAddr:  e.str("DOGSTATSD_ADDR", ""),
		},
		Datasets: SplitList(e.str("DATASETS", "")),
	}

	if len(e.errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(e.errs...))
	}
	return cfg, nil
}

// SplitList splits a comma-separated list, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// env reads typed values and collects parse errors.
type env struct {
	lookup LookupFunc
	errs   []error
}

func (e *env) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) str(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s=%q: not an integer", key, v))
		return def
	}
	return n
}

func (e *env) number(key string, def float64) float64 {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s=%q: not a number", key, v))
		return def
	}
	return f
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Bare integers are seconds.
		if n, nerr := strconv.Atoi(v); nerr == nil {
			return time.Duration(n) * time.Second
		}
		e.errs = append(e.errs, fmt.Errorf("%s=%q: not a duration", key, v))
		return def
	}
	return d
}
