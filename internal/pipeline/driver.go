package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bietl/internal/metrics"
	"bietl/internal/normalize"
	"bietl/internal/schema"
	"bietl/internal/storage"
)

// maxLoggedWarnings caps the per-dataset warning lines; the rest are counted.
const maxLoggedWarnings = 20

// Result summarizes one dataset run.
type Result struct {
	Dataset  string
	Table    string
	Status   Status
	Fetched  int
	Written  int64
	Warnings int
	Duration time.Duration

	// Err is a *StageError when Status is StatusFailed.
	Err error
}

// Failed reports whether the dataset did not complete.
func (r Result) Failed() bool { return r.Status == StatusFailed }

// Driver runs datasets against one repository.
type Driver struct {
	repo storage.Repository
	log  *zap.Logger
	now  func() time.Time
}

// NewDriver returns a Driver writing to repo.
func NewDriver(repo storage.Repository, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{repo: repo, log: log, now: time.Now}
}

// RunAll runs datasets in order. A failure is recorded in its Result and the
// next dataset still runs. Cancellation of ctx fails the remaining datasets
// at their first stage.
func (d *Driver) RunAll(ctx context.Context, datasets []Dataset) []Result {
	out := make([]Result, 0, len(datasets))
	for _, ds := range datasets {
		out = append(out, d.Run(ctx, ds))
	}
	return out
}

// Run executes fetch, normalize, ensure-table and write for ds.
func (d *Driver) Run(ctx context.Context, ds Dataset) Result {
	start := d.now()
	log := d.log.With(zap.String("dataset", ds.Name), zap.String("table", ds.Table.Name))
	res := Result{Dataset: ds.Name, Table: ds.Table.Name}

	fail := func(stage Stage, err error) Result {
		res.Status = StatusFailed
		res.Err = &StageError{Dataset: ds.Name, Stage: stage, Err: err}
		res.Duration = d.now().Sub(start)
		log.Error("dataset failed",
			zap.String("stage", string(stage)),
			zap.Duration("duration", res.Duration),
			zap.Error(err),
		)
		metrics.RecordStage(ds.Name, string(StageRun), res.Err, res.Duration)
		return res
	}

	if err := ds.Validate(); err != nil {
		return fail(StageConfig, err)
	}
	log.Info("dataset started", zap.String("mode", string(ds.Table.Mode)))

	// fetch
	t0 := d.now()
	recs, err := ds.Fetcher.FetchAll(ctx)
	metrics.RecordStage(ds.Name, string(StageFetch), err, d.now().Sub(t0))
	if err != nil {
		return fail(StageFetch, err)
	}
	res.Fetched = len(recs)
	metrics.RecordRows(ds.Name, "fetched", int64(len(recs)))
	log.Info("records fetched", zap.Int("rows", len(recs)), zap.Duration("duration", d.now().Sub(t0)))

	// normalize
	t0 = d.now()
	rows, warns := ds.Mapping.NormalizeAll(recs)
	res.Warnings = len(warns)
	logWarnings(log, warns)
	metrics.RecordRows(ds.Name, "warnings", int64(len(warns)))
	if ds.Table.Mode == schema.Upsert {
		before := len(rows)
		rows = normalize.DedupeLast(rows, ds.Table.KeyIndexes())
		if dropped := before - len(rows); dropped > 0 {
			log.Warn("duplicate keys in batch; kept last occurrence", zap.Int("dropped", dropped))
		}
	}
	metrics.RecordStage(ds.Name, string(StageNormalize), nil, d.now().Sub(t0))

	// schema
	t0 = d.now()
	err = d.repo.EnsureTable(ctx, ds.Table)
	metrics.RecordStage(ds.Name, string(StageSchema), err, d.now().Sub(t0))
	if err != nil {
		return fail(StageSchema, err)
	}

	// write
	if ds.Table.Mode == schema.Upsert && len(rows) == 0 {
		log.Warn("no rows to upsert; skipping write")
	} else {
		t0 = d.now()
		n, err := storage.Write(ctx, d.repo, ds.Table, toCells(rows))
		metrics.RecordStage(ds.Name, string(StageWrite), err, d.now().Sub(t0))
		if err != nil {
			return fail(StageWrite, err)
		}
		res.Written = n
		metrics.RecordRows(ds.Name, "written", n)
	}

	res.Status = StatusSucceeded
	res.Duration = d.now().Sub(start)
	metrics.RecordStage(ds.Name, string(StageRun), nil, res.Duration)
	log.Info("dataset finished",
		zap.String("status", string(res.Status)),
		zap.Int("fetched", res.Fetched),
		zap.Int64("rows", res.Written),
		zap.Int("warnings", res.Warnings),
		zap.Duration("duration", res.Duration),
	)
	return res
}

// Fail records a dataset that could not be assembled (for example missing
// credentials) as a failed Result without running it.
func (d *Driver) Fail(dataset string, stage Stage, err error) Result {
	res := Result{
		Dataset: dataset,
		Status:  StatusFailed,
		Err:     &StageError{Dataset: dataset, Stage: stage, Err: err},
	}
	d.log.Error("dataset failed",
		zap.String("dataset", dataset),
		zap.String("stage", string(stage)),
		zap.Error(err),
	)
	metrics.RecordStage(dataset, string(StageRun), res.Err, 0)
	return res
}

// logWarnings prints the first maxLoggedWarnings warnings and a count of the
// rest.
func logWarnings(log *zap.Logger, warns []normalize.Warning) {
	for i, w := range warns {
		if i == maxLoggedWarnings {
			log.Warn("additional normalization warnings suppressed", zap.Int("suppressed", len(warns)-i))
			return
		}
		log.Warn("normalization warning", zap.String("column", w.Column), zap.String("detail", w.Message))
	}
}

func toCells(rows []normalize.Row) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
