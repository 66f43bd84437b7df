package rdstation

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bietl/internal/datasource/httpds"
	"bietl/internal/normalize"
	"bietl/internal/retry"
	"bietl/internal/schema"
)

const dealsPage = `{
	"has_more": false,
	"total": 2,
	"deals": [
		{
			"_id": "64f0c1",
			"name": "Blindagem SUV",
			"created_at": "2024-03-10T14:00:00.000-03:00",
			"win": true,
			"closed_at": "2024-04-02T09:30:00.000-03:00",
			"user": {"name": "Ana"},
			"deal_stage": {"name": "Proposta"},
			"deal_lost_reason": null,
			"deal_source": {"name": "Google"},
			"deal_custom_fields": [
				{"custom_field": {"label": "Marca do carro"}, "value": ["Toyota", "Honda"]},
				{"custom_field": {"label": "Modelo do carro"}, "value": "Hilux"},
				{"custom_field": {"label": "Data Handoff"}, "value": "25/12/2024"},
				{"custom_field": {"label": "Número Proposta "}, "value": 1234},
				{"custom_field": {"label": "Foi feito handoff?"}, "value": "Sim"}
			]
		},
		{
			"_id": "64f0c2",
			"name": "Sedan",
			"created_at": "2024-03-11T10:00:00.000-03:00",
			"win": null
		}
	]
}`

type capture struct {
	mu      sync.Mutex
	queries []url.Values
	paths   []string
}

func dealsServer(t *testing.T) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.queries = append(c.queries, r.URL.Query())
		c.paths = append(c.paths, r.URL.Path)
		c.mu.Unlock()
		_, _ = io.WriteString(w, dealsPage)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func testSource(baseURL string) Source {
	return Source{
		Client: httpds.NewClient(httpds.Config{
			Timeout: 5 * time.Second,
			Retry:   retry.Policy{MaxAttempts: 2, InitialInterval: time.Millisecond},
		}),
		BaseURL:   baseURL,
		Token:     "crm-token",
		PageLimit: 200,
	}
}

func TestSDRDataset_Rows(t *testing.T) {
	t.Parallel()

	srv, c := dealsServer(t)
	ds := SDRDataset(testSource(srv.URL), "sdr-pipeline")
	require.NoError(t, ds.Validate())

	recs, err := ds.Fetcher.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)

	c.mu.Lock()
	require.Len(t, c.queries, 1)
	assert.Equal(t, "/deals", c.paths[0])
	assert.Equal(t, "crm-token", c.queries[0].Get("token"))
	assert.Equal(t, "sdr-pipeline", c.queries[0].Get("deal_pipeline_id"))
	assert.Equal(t, "200", c.queries[0].Get("limit"))
	assert.Equal(t, "1", c.queries[0].Get("page"))
	c.mu.Unlock()

	rows, warns := ds.Mapping.NormalizeAll(recs)
	assert.Empty(t, warns)
	require.Len(t, rows, 2)

	assert.Equal(t, normalize.Row{
		"64f0c1", "Blindagem SUV", "2024-03-10", true, "2024-04-02",
		"Ana", "Proposta", "", "Google",
		"", "Sim", "2024-12-25", "1234", "Toyota, Honda", "Hilux", "", "", "",
	}, rows[0])

	// No custom fields and no nested objects: every text column is "" and
	// the row keeps its arity.
	assert.Equal(t, normalize.Row{
		"64f0c2", "Sedan", "2024-03-11", nil, nil,
		"", "", "", "",
		"", "", nil, "", "", "", "", "", "",
	}, rows[1])
	assert.Len(t, rows[1], len(DealsTable("x").Columns))
}

func TestBDRDataset_UsesOwnFunnelAndTable(t *testing.T) {
	t.Parallel()

	srv, c := dealsServer(t)
	ds := BDRDataset(testSource(srv.URL), "bdr-pipeline")

	_, err := ds.Fetcher.FetchAll(context.Background())
	require.NoError(t, err)

	c.mu.Lock()
	assert.Equal(t, "bdr-pipeline", c.queries[0].Get("deal_pipeline_id"))
	c.mu.Unlock()
	assert.Equal(t, BDRDeals, ds.Name)
	assert.Equal(t, "rd_crm_bdr_deals", ds.Table.Name)
	assert.Equal(t, "rd_crm_sdr_deals", SDRDataset(testSource(srv.URL), "x").Table.Name)
}

func TestDealsTable(t *testing.T) {
	t.Parallel()

	tbl := DealsTable("rd_crm_sdr_deals")
	require.NoError(t, tbl.Validate())
	assert.Equal(t, schema.Upsert, tbl.Mode)
	assert.Equal(t, []string{"id"}, tbl.PrimaryKey)
	assert.Len(t, tbl.Columns, 18)
	assert.Equal(t, DealsMapping.Columns(), tbl.ColumnNames())
}

func TestDealsMapping_IDFallbackAndBadDate(t *testing.T) {
	t.Parallel()

	row, warns := DealsMapping.Normalize(map[string]any{
		"id": "legacy-1",
		"deal_custom_fields": []any{
			map[string]any{"custom_field": map[string]any{"label": "Data Handoff"}, "value": "12/31/2024"},
		},
	})
	assert.Equal(t, "legacy-1", row[0])
	assert.Nil(t, row[11])
	require.Len(t, warns, 1)
	assert.Equal(t, "data_handoff", warns[0].Column)
}
