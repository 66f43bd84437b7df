// Package catalog lists every dataset the batch knows and assembles them
// from configuration.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"bietl/internal/config"
	"bietl/internal/datasource/httpds"
	"bietl/internal/pipeline"
	"bietl/internal/retry"
	"bietl/internal/schema"
	"bietl/internal/sources/posthog"
	"bietl/internal/sources/rdstation"
	"bietl/internal/sources/trello"
)

// Source names, also used as HTTP client keys.
const (
	SourcePostHog   = "posthog"
	SourceRDStation = "rdstation"
	SourceTrello    = "trello"
)

// Entry describes one dataset before it is bound to credentials.
type Entry struct {
	Name     string
	Source   string
	Table    schema.Table
	Requires []string

	build func(b *Builder) pipeline.Dataset
}

var entries = []Entry{
	{
		Name: posthog.PaidUsers, Source: SourcePostHog, Table: posthog.PaidUsersTable, Requires: posthog.Requires,
		build: func(b *Builder) pipeline.Dataset { return posthog.PaidUsersDataset(b.posthog()) },
	},
	{
		Name: posthog.Overview, Source: SourcePostHog, Table: posthog.OverviewTable, Requires: posthog.Requires,
		build: func(b *Builder) pipeline.Dataset { return posthog.OverviewDataset(b.posthog()) },
	},
	{
		Name: posthog.RDEvents, Source: SourcePostHog, Table: posthog.RDEventsTable, Requires: posthog.Requires,
		build: func(b *Builder) pipeline.Dataset { return posthog.RDEventsDataset(b.posthog()) },
	},
	{
		Name: rdstation.SDRDeals, Source: SourceRDStation, Table: rdstation.DealsTable("rd_crm_sdr_deals"), Requires: rdstation.SDRRequires,
		build: func(b *Builder) pipeline.Dataset {
			return rdstation.SDRDataset(b.rdstation(), b.cfg.RDStation.SDRPipelineID)
		},
	},
	{
		Name: rdstation.BDRDeals, Source: SourceRDStation, Table: rdstation.DealsTable("rd_crm_bdr_deals"), Requires: rdstation.BDRRequires,
		build: func(b *Builder) pipeline.Dataset {
			return rdstation.BDRDataset(b.rdstation(), b.cfg.RDStation.BDRPipelineID)
		},
	},
	{
		Name: trello.Cards, Source: SourceTrello, Table: trello.CardsTable, Requires: trello.Requires,
		build: func(b *Builder) pipeline.Dataset { return trello.CardsDataset(b.trello()) },
	},
}

// All returns every entry in run order.
func All() []Entry {
	return append([]Entry(nil), entries...)
}

// Names returns every dataset name in run order.
func Names() []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

// Select returns the named entries in run order. An empty list selects all.
// Unknown names are an error.
func Select(names []string) ([]Entry, error) {
	if len(names) == 0 {
		return All(), nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []Entry
	for _, e := range entries {
		if want[e.Name] {
			out = append(out, e)
			delete(want, e.Name)
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for n := range want {
			unknown = append(unknown, n)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("catalog: unknown dataset(s) %s (have %s)",
			strings.Join(unknown, ", "), strings.Join(Names(), ", "))
	}
	return out, nil
}

// Builder binds entries to configuration. Datasets of one source share a
// single HTTP client and so a single rate limiter.
type Builder struct {
	cfg     *config.Config
	log     *zap.Logger
	clients map[string]*httpds.Client
}

// NewBuilder returns a Builder for cfg.
func NewBuilder(cfg *config.Config, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{cfg: cfg, log: log, clients: map[string]*httpds.Client{}}
}

// Build returns the runnable dataset for e, or an error naming every
// missing credential.
func (b *Builder) Build(e Entry) (pipeline.Dataset, error) {
	issues := b.cfg.Require(e.Name, e.Requires...)
	if config.HasErrors(issues) {
		errs := make([]error, 0, len(issues))
		for _, is := range issues {
			errs = append(errs, is)
		}
		return pipeline.Dataset{}, errors.Join(errs...)
	}
	return e.build(b), nil
}

func (b *Builder) client(source string, rps float64) *httpds.Client {
	if c, ok := b.clients[source]; ok {
		return c
	}
	c := httpds.NewClient(httpds.Config{
		Timeout: b.cfg.HTTP.Timeout,
		Retry: retry.Policy{
			MaxAttempts:     b.cfg.HTTP.MaxAttempts,
			InitialInterval: b.cfg.HTTP.InitialBackoff,
			MaxInterval:     b.cfg.HTTP.MaxBackoff,
			Multiplier:      2,
			Jitter:          0.2,
		},
		RateLimit: rps,
		Logger:    b.log.With(zap.String("source", source)),
	})
	b.clients[source] = c
	return c
}

func (b *Builder) posthog() posthog.Source {
	c := b.cfg.PostHog
	return posthog.Source{
		Client:    b.client(SourcePostHog, c.RateLimit),
		BaseURL:   c.BaseURL,
		ProjectID: c.ProjectID,
		Token:     c.Token,
		Logger:    b.log.With(zap.String("source", SourcePostHog)),
	}
}

func (b *Builder) rdstation() rdstation.Source {
	c := b.cfg.RDStation
	return rdstation.Source{
		Client:    b.client(SourceRDStation, c.RateLimit),
		BaseURL:   c.BaseURL,
		Token:     c.Token,
		PageLimit: c.PageLimit,
		Logger:    b.log.With(zap.String("source", SourceRDStation)),
	}
}

func (b *Builder) trello() trello.Source {
	c := b.cfg.Trello
	return trello.Source{
		Client:    b.client(SourceTrello, c.RateLimit),
		BaseURL:   c.BaseURL,
		APIKey:    c.APIKey,
		Token:     c.Token,
		BoardID:   c.BoardID,
		PageLimit: c.PageLimit,
		Logger:    b.log.With(zap.String("source", SourceTrello)),
	}
}
