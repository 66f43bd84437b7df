package posthog

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"bietl/internal/datasource/httpds"
	"bietl/internal/normalize"
	"bietl/internal/retry"
)

// captured is the last request a fake query server received.
type captured struct {
	mu      sync.Mutex
	method  string
	path    string
	header  http.Header
	payload map[string]any
}

func (c *captured) snapshot() (string, string, http.Header, map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.method, c.path, c.header, c.payload
}

// queryServer answers every HogQL query with body and captures the request.
func queryServer(t *testing.T, body string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.method, c.path, c.header = r.Method, r.URL.Path, r.Header.Clone()
		_ = json.Unmarshal(raw, &c.payload)
		c.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func source(url string, log *zap.Logger) Source {
	return Source{
		Client: httpds.NewClient(httpds.Config{
			Timeout: 5 * time.Second,
			Retry:   retry.Policy{MaxAttempts: 2, InitialInterval: time.Millisecond},
		}),
		BaseURL:   url,
		ProjectID: "41743",
		Token:     "phx_secret",
		Logger:    log,
	}
}

func TestOverviewDataset(t *testing.T) {
	t.Parallel()

	srv, c := queryServer(t, `{
		"columns": ["data", "pageviews", "sessions", "users", "avg_session_duration"],
		"results": [
			["2024-05-02", 120, 40, 31, 35.5],
			["2024-05-01", 80, null, null, null]
		],
		"hasMore": false
	}`)

	ds := OverviewDataset(source(srv.URL, nil))
	require.NoError(t, ds.Validate())

	recs, err := ds.Fetcher.FetchAll(context.Background())
	require.NoError(t, err)

	method, path, header, payload := c.snapshot()
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/api/projects/41743/query/", path)
	assert.Equal(t, "Bearer phx_secret", header.Get("Authorization"))
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	q := payload["query"].(map[string]any)
	assert.Equal(t, "HogQLQuery", q["kind"])
	assert.Contains(t, q["query"], "avg_session_duration")

	rows, warns := ds.Mapping.NormalizeAll(recs)
	assert.Empty(t, warns)
	assert.Equal(t, []normalize.Row{
		{"2024-05-02", int64(120), int64(40), int64(31), 35.5},
		{"2024-05-01", int64(80), nil, nil, nil},
	}, rows)
}

// TestPaidUsersDataset zips the two parallel arrays of the single result row.
func TestPaidUsersDataset(t *testing.T) {
	t.Parallel()

	srv, _ := queryServer(t, `{
		"columns": ["date", "total"],
		"results": [[["2024-01-01", "2024-02-01", "2024-03-01"], [10, 20, 30]]]
	}`)

	ds := PaidUsersDataset(source(srv.URL, nil))
	recs, err := ds.Fetcher.FetchAll(context.Background())
	require.NoError(t, err)

	rows, warns := ds.Mapping.NormalizeAll(recs)
	assert.Empty(t, warns)
	assert.Equal(t, []normalize.Row{
		{"2024-01-01", int64(10)},
		{"2024-02-01", int64(20)},
		{"2024-03-01", int64(30)},
	}, rows)
}

func TestRDEventsDataset_NullOrigin(t *testing.T) {
	t.Parallel()

	srv, _ := queryServer(t, `{
		"columns": ["data", "origem", "total"],
		"results": [["2024-05-02", "Google", 4], ["2024-05-02", null, 1]]
	}`)

	ds := RDEventsDataset(source(srv.URL, nil))
	recs, err := ds.Fetcher.FetchAll(context.Background())
	require.NoError(t, err)

	rows, _ := ds.Mapping.NormalizeAll(recs)
	assert.Equal(t, []normalize.Row{
		{"2024-05-02", "Google", int64(4)},
		{"2024-05-02", nil, int64(1)},
	}, rows)
}

func TestQueryFetcher_HasMoreWarns(t *testing.T) {
	t.Parallel()

	srv, _ := queryServer(t, `{"columns": ["a"], "results": [[1]], "hasMore": true}`)
	core, logs := observer.New(zapcore.WarnLevel)

	recs, err := source(srv.URL, zap.New(core)).query("SELECT 1 AS a", false).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, 1, logs.FilterMessageSnippet("truncated").Len())
}

func TestQueryFetcher_Malformed(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		body string
		zip  bool
	}{
		"row arity":        {body: `{"columns": ["a", "b"], "results": [[1]]}`},
		"no columns":       {body: `{"results": [[1]]}`},
		"zip non-array":    {body: `{"columns": ["a"], "results": [[1]]}`, zip: true},
		"zip row arity":    {body: `{"columns": ["a", "b"], "results": [[[1]]]}`, zip: true},
		"invalid document": {body: `{"columns": [`},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv, _ := queryServer(t, tc.body)
			_, err := source(srv.URL, nil).query("SELECT 1", tc.zip).FetchAll(context.Background())
			assert.ErrorIs(t, err, httpds.ErrMalformedBody)
		})
	}
}

// TestZipArrays_UnequalLengths keeps the shortest common prefix.
func TestZipArrays_UnequalLengths(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	recs, err := zipArrays(queryResponse{
		Columns: []string{"date", "total"},
		Results: [][]any{{[]any{"2024-01-01", "2024-02-01"}, []any{json.Number("1")}}},
	}, zap.New(core))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2024-01-01", recs[0].Get("date").String())
	assert.Equal(t, 1, logs.Len())
}

func TestQueryFetcher_EmptyResult(t *testing.T) {
	t.Parallel()

	srv, _ := queryServer(t, `{"columns": ["data"], "results": []}`)
	recs, err := OverviewDataset(source(srv.URL, nil)).Fetcher.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestEmbeddedQueries(t *testing.T) {
	t.Parallel()

	for name, q := range map[string]string{
		"overview":   overviewQuery,
		"paid users": paidUsersQuery,
		"rd events":  rdEventsQuery,
	} {
		assert.True(t, strings.HasPrefix(strings.TrimSpace(q), "SELECT"), name)
	}

	// Preview, local-file and internal traffic stays out of the paid count.
	for _, filter := range []string{
		"notILike(properties.$pathname, '%/landing-pages/previa/%')",
		"notILike(properties.$pathname, '%OneDrive%')",
		"notILike(properties.$pathname, '%C:/%')",
		"notILike(properties.$pathname, '%/render2%')",
		"notILike(properties.$current_url, '%https://carbon-blindados.webflow.io/%')",
		"notILike(properties.$user_id, '%carbonblindados.com.br%')",
		"notILike(properties.$user_id, '%carbon.cars%')",
		"notEquals(properties.gclid, NULL)",
	} {
		assert.Contains(t, paidUsersQuery, filter)
	}
	for _, ds := range []func(Source) error{
		func(s Source) error { return OverviewDataset(s).Validate() },
		func(s Source) error { return PaidUsersDataset(s).Validate() },
		func(s Source) error { return RDEventsDataset(s).Validate() },
	} {
		assert.NoError(t, ds(Source{}))
	}
}
