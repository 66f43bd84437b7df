// Package posthog fetches product-analytics aggregates through the HogQL
// query endpoint and declares the datasets built on them.
package posthog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"bietl/internal/datasource/httpds"
	"bietl/internal/record"
)

// Poster is the subset of the HTTP client the query fetcher uses.
// *httpds.Client implements it.
type Poster interface {
	PostJSON(ctx context.Context, rawURL string, payload any, headers http.Header, out any) error
}

// QueryFetcher runs one HogQL query and turns the tabular response into
// records keyed by column name.
type QueryFetcher struct {
	Client    Poster
	BaseURL   string
	ProjectID string
	Token     string
	Query     string

	// ZipArrays treats the first result row as parallel arrays, one per
	// column, and emits one record per array index. Queries that aggregate
	// with groupArray return this shape.
	ZipArrays bool

	Logger *zap.Logger
}

type queryRequest struct {
	Query hogQL `json:"query"`
}

type hogQL struct {
	Kind  string `json:"kind"`
	Query string `json:"query"`
}

type queryResponse struct {
	Columns []string `json:"columns"`
	Results [][]any  `json:"results"`
	HasMore bool     `json:"hasMore"`
}

// Endpoint returns the query URL for the project.
func (f *QueryFetcher) Endpoint() string {
	return fmt.Sprintf("%s/api/projects/%s/query/", f.BaseURL, url.PathEscape(f.ProjectID))
}

// FetchAll implements fetch.Fetcher.
func (f *QueryFetcher) FetchAll(ctx context.Context) ([]record.Record, error) {
	log := f.Logger
	if log == nil {
		log = zap.NewNop()
	}

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+f.Token)

	var resp queryResponse
	req := queryRequest{Query: hogQL{Kind: "HogQLQuery", Query: f.Query}}
	if err := f.Client.PostJSON(ctx, f.Endpoint(), req, hdr, &resp); err != nil {
		return nil, fmt.Errorf("posthog: query: %w", err)
	}
	if resp.HasMore {
		log.Warn("query result truncated by server limit", zap.Int("rows", len(resp.Results)))
	}
	if len(resp.Columns) == 0 {
		if len(resp.Results) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("posthog: %w: results without columns", httpds.ErrMalformedBody)
	}

	if f.ZipArrays {
		return zipArrays(resp, log)
	}
	return zipRows(resp)
}

// zipRows pairs every result row with the column names.
func zipRows(resp queryResponse) ([]record.Record, error) {
	out := make([]record.Record, 0, len(resp.Results))
	for i, row := range resp.Results {
		if len(row) != len(resp.Columns) {
			return nil, fmt.Errorf("posthog: %w: row %d has %d values for %d columns",
				httpds.ErrMalformedBody, i, len(row), len(resp.Columns))
		}
		rec := make(record.Record, len(row))
		for j, col := range resp.Columns {
			rec[col] = row[j]
		}
		out = append(out, rec)
	}
	return out, nil
}

// zipArrays expands the first row's per-column arrays into one record per
// index. Arrays of unequal length are truncated to the shortest.
func zipArrays(resp queryResponse, log *zap.Logger) ([]record.Record, error) {
	if len(resp.Results) == 0 {
		return nil, nil
	}
	row := resp.Results[0]
	if len(row) != len(resp.Columns) {
		return nil, fmt.Errorf("posthog: %w: row has %d values for %d columns",
			httpds.ErrMalformedBody, len(row), len(resp.Columns))
	}

	arrays := make([][]any, len(row))
	for i, cell := range row {
		arr, ok := cell.([]any)
		if !ok {
			return nil, fmt.Errorf("posthog: %w: column %s is not an array",
				httpds.ErrMalformedBody, resp.Columns[i])
		}
		arrays[i] = arr
	}
	n := len(arrays[0])
	for _, arr := range arrays[1:] {
		n = min(n, len(arr))
	}
	for i, arr := range arrays {
		if len(arr) != n {
			log.Warn("array columns differ in length; truncating",
				zap.String("column", resp.Columns[i]), zap.Int("length", len(arr)), zap.Int("kept", n))
		}
	}

	out := make([]record.Record, 0, n)
	for j := 0; j < n; j++ {
		rec := make(record.Record, len(arrays))
		for i, col := range resp.Columns {
			rec[col] = arrays[i][j]
		}
		out = append(out, rec)
	}
	return out, nil
}
