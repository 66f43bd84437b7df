package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"bietl/internal/datasource/httpds"
	"bietl/internal/record"
)

// CursorFetcher walks an endpoint that returns a bare JSON array and pages
// backwards with a "before" cursor. The first request carries only limit;
// later ones add before=<id of the last item of the previous page>. The
// fetch ends on an empty page or one shorter than Limit.
type CursorFetcher struct {
	Client  JSONGetter
	URL     string
	Params  url.Values
	Headers http.Header

	Limit       int    // required
	IDKey       string // default "id"
	CursorParam string // default "before"
	LimitParam  string // default "limit"
	MaxPages    int    // default DefaultMaxPages
	Logger      *zap.Logger
}

// FetchAll implements Fetcher.
func (f *CursorFetcher) FetchAll(ctx context.Context) ([]record.Record, error) {
	if f.Client == nil {
		return nil, fmt.Errorf("fetch: cursor fetcher has no client")
	}
	if f.Limit <= 0 {
		return nil, fmt.Errorf("fetch: cursor fetcher limit must be positive, got %d", f.Limit)
	}
	idKey := orDefault(f.IDKey, "id")
	cursorParam := orDefault(f.CursorParam, "before")
	limitParam := orDefault(f.LimitParam, "limit")
	maxPages := f.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	log := f.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var (
		all    []record.Record
		cursor string
	)
	for page := 1; ; page++ {
		if page > maxPages {
			return nil, fmt.Errorf("%w: more than %d pages from %s", ErrTooManyPages, maxPages, httpds.Redact(f.URL))
		}

		q := url.Values{}
		for k, vs := range f.Params {
			q[k] = append([]string(nil), vs...)
		}
		q.Set(limitParam, strconv.Itoa(f.Limit))
		if cursor != "" {
			q.Set(cursorParam, cursor)
		}
		u, err := httpds.WithQuery(f.URL, q)
		if err != nil {
			return nil, err
		}

		var items []any
		if err := f.Client.GetJSON(ctx, u, f.Headers, &items); err != nil {
			return nil, fmt.Errorf("fetch: page %d: %w", page, err)
		}
		if len(items) == 0 {
			return all, nil
		}

		recs, skipped := toRecords(items)
		if skipped > 0 {
			log.Warn("skipped non-object items", zap.Int("page", page), zap.Int("skipped", skipped))
		}
		all = append(all, recs...)
		log.Debug("page fetched", zap.Int("page", page), zap.Int("items", len(items)))

		if len(items) < f.Limit || len(recs) == 0 {
			return all, nil
		}
		next := recs[len(recs)-1].Get(idKey).String()
		if next == "" || next == cursor {
			log.Warn("cursor did not advance; stopping",
				zap.Int("page", page),
				zap.String("url", httpds.Redact(f.URL)),
			)
			return all, nil
		}
		cursor = next
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
