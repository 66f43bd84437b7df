// Package runner executes one batch: every selected dataset, in order,
// under the cross-process run lock, followed by a summary and a metrics
// flush.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bietl/internal/catalog"
	"bietl/internal/config"
	"bietl/internal/metrics"
	"bietl/internal/pipeline"
	"bietl/internal/runlock"
	"bietl/internal/storage"
)

// ErrDatasetsFailed is returned by Run when at least one dataset failed.
var ErrDatasetsFailed = errors.New("runner: one or more datasets failed")

// Summary describes a finished batch.
type Summary struct {
	RunID    string
	Results  []pipeline.Result
	Duration time.Duration
}

// Failed counts failed datasets.
func (s Summary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.Failed() {
			n++
		}
	}
	return n
}

// Runner runs batches for one configuration.
type Runner struct {
	cfg *config.Config
	log *zap.Logger

	openRepo func(ctx context.Context) (storage.Repository, error)
	newID    func() string
}

// New returns a Runner writing to the database described by cfg.DB.
func New(cfg *config.Config, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runner{cfg: cfg, log: log, newID: uuid.NewString}
	r.openRepo = func(ctx context.Context) (storage.Repository, error) {
		return storage.New(ctx, StorageConfig(cfg.DB, log))
	}
	return r
}

// StorageConfig maps the DB section onto the storage factory config.
func StorageConfig(db config.DB, log *zap.Logger) storage.Config {
	return storage.Config{
		Kind:      db.Driver,
		DSN:       db.DSN,
		Host:      db.Host,
		Port:      db.Port,
		User:      db.User,
		Password:  db.Password,
		Database:  db.Name,
		BatchSize: db.BatchSize,
		Logger:    log,
	}
}

// Run executes the datasets named in names, or cfg.Datasets when names is
// empty, or every dataset when both are empty. The returned error is
// ErrDatasetsFailed when any dataset failed, runlock.ErrLocked when another
// batch is running, or a setup error.
func (r *Runner) Run(ctx context.Context, names []string) (Summary, error) {
	sum := Summary{RunID: r.newID()}
	log := r.log.With(zap.String("run_id", sum.RunID))
	start := time.Now()

	if len(names) == 0 {
		names = r.cfg.Datasets
	}
	entries, err := catalog.Select(names)
	if err != nil {
		return sum, err
	}

	lock, err := runlock.Acquire(r.cfg.Schedule.LockFile)
	if err != nil {
		if errors.Is(err, runlock.ErrLocked) {
			log.Warn("another batch holds the run lock; skipping", zap.String("lock_file", r.cfg.Schedule.LockFile))
		}
		return sum, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn("release run lock", zap.Error(err))
		}
	}()

	log.Info("batch started", zap.Int("datasets", len(entries)), zap.String("db_driver", r.cfg.DB.Driver))

	repo, err := r.openRepo(ctx)
	if err != nil {
		return sum, fmt.Errorf("runner: open %s database: %w", r.cfg.DB.Driver, err)
	}
	defer repo.Close()

	builder := catalog.NewBuilder(r.cfg, log)
	driver := pipeline.NewDriver(repo, log)
	for _, e := range entries {
		ds, err := builder.Build(e)
		if err != nil {
			sum.Results = append(sum.Results, driver.Fail(e.Name, pipeline.StageConfig, err))
			continue
		}
		sum.Results = append(sum.Results, driver.Run(ctx, ds))
	}
	sum.Duration = time.Since(start)

	logSummary(log, sum)
	if err := metrics.Flush(); err != nil {
		log.Warn("metrics flush failed", zap.Error(err))
	}

	if sum.Failed() > 0 {
		return sum, fmt.Errorf("%w: %d of %d", ErrDatasetsFailed, sum.Failed(), len(sum.Results))
	}
	return sum, nil
}

func logSummary(log *zap.Logger, sum Summary) {
	for _, res := range sum.Results {
		fields := []zap.Field{
			zap.String("dataset", res.Dataset),
			zap.String("status", string(res.Status)),
			zap.Int("fetched", res.Fetched),
			zap.Int64("rows", res.Written),
			zap.Int("warnings", res.Warnings),
			zap.Duration("duration", res.Duration),
		}
		if res.Err != nil {
			fields = append(fields, zap.Error(res.Err))
		}
		log.Info("dataset summary", fields...)
	}
	log.Info("batch finished",
		zap.Int("succeeded", len(sum.Results)-sum.Failed()),
		zap.Int("failed", sum.Failed()),
		zap.Duration("duration", sum.Duration),
	)
}
