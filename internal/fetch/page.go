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

// PageFetcher walks numbered pages starting at 1.
//
// Each request carries Params plus page and limit. Items are read from the
// array under ItemsKey; the fetcher advances only while the boolean under
// HasMoreKey is true. An empty page that still claims more data ends the
// fetch with a warning.
type PageFetcher struct {
	Client  JSONGetter
	URL     string
	Params  url.Values
	Headers http.Header

	ItemsKey   string
	HasMoreKey string // default "has_more"
	PageParam  string // default "page"
	LimitParam string // default "limit"
	Limit      int
	MaxPages   int // default DefaultMaxPages

	Logger *zap.Logger
}

func (f *PageFetcher) withDefaults() PageFetcher {
	c := *f
	if c.HasMoreKey == "" {
		c.HasMoreKey = "has_more"
	}
	if c.PageParam == "" {
		c.PageParam = "page"
	}
	if c.LimitParam == "" {
		c.LimitParam = "limit"
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// FetchAll implements Fetcher.
func (f *PageFetcher) FetchAll(ctx context.Context) ([]record.Record, error) {
	c := f.withDefaults()
	if c.Client == nil {
		return nil, fmt.Errorf("fetch: page fetcher has no client")
	}
	if c.ItemsKey == "" {
		return nil, fmt.Errorf("fetch: page fetcher has no items key")
	}

	var all []record.Record
	for page := 1; ; page++ {
		if page > c.MaxPages {
			return nil, fmt.Errorf("%w: more than %d pages from %s", ErrTooManyPages, c.MaxPages, httpds.Redact(c.URL))
		}

		q := url.Values{}
		for k, vs := range c.Params {
			q[k] = append([]string(nil), vs...)
		}
		q.Set(c.PageParam, strconv.Itoa(page))
		if c.Limit > 0 {
			q.Set(c.LimitParam, strconv.Itoa(c.Limit))
		}
		u, err := httpds.WithQuery(c.URL, q)
		if err != nil {
			return nil, err
		}

		var body record.Record
		if err := c.Client.GetJSON(ctx, u, c.Headers, &body); err != nil {
			return nil, fmt.Errorf("fetch: page %d: %w", page, err)
		}

		items := body.Get(c.ItemsKey)
		if !items.IsAbsent() && items.Kind() != record.List {
			return nil, fmt.Errorf("fetch: page %d: %w: %q is %s, want list",
				page, httpds.ErrMalformedBody, c.ItemsKey, items.Kind())
		}
		raw, _ := items.Raw().([]any)
		recs, skipped := toRecords(raw)
		if skipped > 0 {
			c.Logger.Warn("skipped non-object items", zap.Int("page", page), zap.Int("skipped", skipped))
		}
		all = append(all, recs...)

		more, _ := body.Get(c.HasMoreKey).Bool()
		c.Logger.Debug("page fetched",
			zap.Int("page", page),
			zap.Int("items", len(recs)),
			zap.Bool("has_more", more),
		)
		if !more {
			return all, nil
		}
		if len(raw) == 0 {
			c.Logger.Warn("empty page reported more data; stopping",
				zap.Int("page", page),
				zap.String("url", httpds.Redact(c.URL)),
			)
			return all, nil
		}
	}
}
