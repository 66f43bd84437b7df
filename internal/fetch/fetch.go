// Package fetch drains paginated JSON APIs into a slice of records.
//
// Two pagination contracts are supported:
//
//   - PageFetcher: numbered pages with an explicit has-more flag
//     (RD Station CRM).
//   - CursorFetcher: a "before" cursor set to the id of the last item of
//     the previous page, ending on an empty or short page (Trello).
//
// Fetching is all-or-nothing: any request failure, after the HTTP client's
// own retries, discards every record accumulated so far.
package fetch

import (
	"context"
	"errors"
	"net/http"

	"bietl/internal/record"
)

// DefaultMaxPages bounds a fetch when the caller sets no limit.
const DefaultMaxPages = 10000

// ErrTooManyPages is returned when an API keeps reporting more data beyond
// the configured page bound.
var ErrTooManyPages = errors.New("fetch: page limit exceeded")

// Fetcher returns every record of a dataset.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]record.Record, error)
}

// Func adapts a function to Fetcher.
type Func func(ctx context.Context) ([]record.Record, error)

// FetchAll calls f.
func (f Func) FetchAll(ctx context.Context) ([]record.Record, error) { return f(ctx) }

// JSONGetter is the subset of the HTTP client the fetchers use.
// *httpds.Client implements it.
type JSONGetter interface {
	GetJSON(ctx context.Context, rawURL string, headers http.Header, out any) error
}

// toRecords converts decoded array elements to records. Elements that are
// not JSON objects are skipped and counted.
func toRecords(items []any) ([]record.Record, int) {
	out := make([]record.Record, 0, len(items))
	skipped := 0
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			skipped++
			continue
		}
		out = append(out, record.Record(m))
	}
	return out, skipped
}
