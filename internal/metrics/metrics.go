// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the dataset pipelines.
//
// The package is intentionally minimal:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data (histograms).
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//
// Pipeline stages (fetch, normalize, ensure_table, write) and the per-dataset
// run itself are instrumented without coupling the pipeline to a specific
// metrics system such as Prometheus or Datadog.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the helpers below.
const (
	StageTotal     = "bietl_stage_total"
	StageDuration  = "bietl_stage_duration_seconds"
	RowsTotal      = "bietl_rows_total"
	HTTPRetryTotal = "bietl_http_retries_total"

	statusSuccess = "success"
	statusFailure = "failure"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
// It is intentionally generic so we can plug in Prometheus, Datadog, etc.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStage measures latency and success/failure of one pipeline stage.
// The stage "run" covers a whole dataset execution.
func RecordStage(dataset, stage string, err error, d time.Duration) {
	status := statusSuccess
	if err != nil {
		status = statusFailure
	}

	lbls := Labels{
		"dataset": dataset,
		"stage":   stage,
		"status":  status,
	}

	b := current()
	b.IncCounter(StageTotal, 1, lbls)
	b.ObserveHistogram(StageDuration, d.Seconds(), lbls)
}

// RecordRows increments a row-level counter for the given dataset and kind.
//
// Kinds mirror the run summary fields:
//   - "fetched"
//   - "written"
//   - "warnings"
func RecordRows(dataset, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{
		"dataset": dataset,
		"kind":    kind,
	})
}

// RecordRetry counts one retried HTTP request against host.
func RecordRetry(host string) {
	current().IncCounter(HTTPRetryTotal, 1, Labels{"host": host})
}
