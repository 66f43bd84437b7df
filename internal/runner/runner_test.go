package runner

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"bietl/internal/config"
	"bietl/internal/pipeline"
	"bietl/internal/runlock"
	"bietl/internal/storage"
	_ "bietl/internal/storage/sqlite"
)

const deals = `{"has_more": false, "deals": [
	{"_id": "d1", "name": "A", "created_at": "2024-03-10T14:00:00.000-03:00",
	 "deal_custom_fields": [{"custom_field": {"label": "Marca do carro"}, "value": ["Toyota", "Honda"]}]},
	{"_id": "d2", "name": "B", "win": true}
]}`

// testConfig points the CRM source at a fake server and the database at a
// SQLite file in a temp dir.
func testConfig(t *testing.T, crmURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	env := map[string]string{
		"DB_DRIVER":             "sqlite",
		"DB_NAME":               filepath.Join(dir, "bi.db"),
		"LOCK_FILE":             filepath.Join(dir, "bietl.lock"),
		"RD_CRM_TOKEN":          "tok",
		"RD_SDR_ID":             "sdr",
		"RD_BASE_URL":           crmURL,
		"RETRY_MAX_ATTEMPTS":    "2",
		"RETRY_INITIAL_BACKOFF": "1ms",
	}
	cfg, err := config.FromLookup(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)
	return cfg
}

func crmServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, deals)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_Succeeds(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, crmServer(t).URL)
	r := New(cfg, nil)
	r.newID = func() string { return "run-1" }

	sum, err := r.Run(context.Background(), []string{"rd_sdr_deals"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", sum.RunID)
	require.Len(t, sum.Results, 1)
	assert.Equal(t, pipeline.StatusSucceeded, sum.Results[0].Status)
	assert.Equal(t, int64(2), sum.Results[0].Written)
	assert.Zero(t, sum.Failed())

	// A second batch upserts the same keys again.
	sum, err = r.Run(context.Background(), []string{"rd_sdr_deals"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Results[0].Written)
}

// TestRun_MissingCredentialsFailOnlyThatDataset keeps the CRM dataset
// running when the board credentials are absent.
func TestRun_MissingCredentialsFailOnlyThatDataset(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	cfg := testConfig(t, crmServer(t).URL)

	sum, err := New(cfg, zap.New(core)).Run(context.Background(), []string{"trello_cards", "rd_sdr_deals"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDatasetsFailed)

	require.Len(t, sum.Results, 2)
	assert.Equal(t, "rd_sdr_deals", sum.Results[0].Dataset)
	assert.Equal(t, pipeline.StatusSucceeded, sum.Results[0].Status)

	assert.Equal(t, "trello_cards", sum.Results[1].Dataset)
	var se *pipeline.StageError
	require.True(t, errors.As(sum.Results[1].Err, &se))
	assert.Equal(t, pipeline.StageConfig, se.Stage)
	assert.Contains(t, se.Error(), "TRELLO_TOKEN")
	assert.Equal(t, 1, sum.Failed())

	finished := logs.FilterMessage("batch finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, int64(1), finished[0].ContextMap()["failed"])
	assert.NotEmpty(t, finished[0].ContextMap()["run_id"])
}

func TestRun_Locked(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://127.0.0.1:0")
	held, err := runlock.Acquire(cfg.Schedule.LockFile)
	require.NoError(t, err)
	defer held.Release()

	opened := false
	r := New(cfg, nil)
	r.openRepo = func(context.Context) (storage.Repository, error) {
		opened = true
		return nil, errors.New("unreachable")
	}

	sum, err := r.Run(context.Background(), nil)
	assert.ErrorIs(t, err, runlock.ErrLocked)
	assert.Empty(t, sum.Results)
	assert.False(t, opened)
}

func TestRun_SetupErrors(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://127.0.0.1:0")

	_, err := New(cfg, nil).Run(context.Background(), []string{"nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dataset")

	r := New(cfg, nil)
	r.openRepo = func(context.Context) (storage.Repository, error) {
		return nil, errors.New("connection refused")
	}
	_, err = r.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestStorageConfig(t *testing.T) {
	t.Parallel()

	got := StorageConfig(config.DB{
		Driver: "mysql", Host: "db", Port: 3306, User: "etl", Password: "p", Name: "bi", BatchSize: 250,
	}, nil)
	assert.Equal(t, storage.Config{
		Kind: "mysql", Host: "db", Port: 3306, User: "etl", Password: "p", Database: "bi", BatchSize: 250,
	}, got)
}
