// Package pipeline runs one dataset end to end: fetch, normalize, ensure the
// destination table, write.
//
// A failing dataset never aborts its siblings. Every failure is wrapped in a
// *StageError naming the dataset and the stage that failed, logged, counted
// in metrics and returned inside a Result.
package pipeline

import (
	"errors"
	"fmt"

	"bietl/internal/fetch"
	"bietl/internal/normalize"
	"bietl/internal/schema"
)

// Stage names one step of a dataset run.
type Stage string

const (
	StageConfig    Stage = "config"
	StageFetch     Stage = "fetch"
	StageNormalize Stage = "normalize"
	StageSchema    Stage = "schema"
	StageWrite     Stage = "write"

	// StageRun labels whole-dataset metrics.
	StageRun Stage = "run"
)

// Dataset binds a source to its destination table.
type Dataset struct {
	Name    string
	Fetcher fetch.Fetcher
	Mapping normalize.Mapping
	Table   schema.Table
}

// Validate checks that the mapping produces exactly the table's columns, in
// order.
func (d Dataset) Validate() error {
	if d.Name == "" {
		return errors.New("pipeline: dataset name must not be empty")
	}
	if d.Fetcher == nil {
		return fmt.Errorf("pipeline: dataset %s has no fetcher", d.Name)
	}
	if err := d.Table.Validate(); err != nil {
		return err
	}
	cols := d.Mapping.Columns()
	want := d.Table.ColumnNames()
	if len(cols) != len(want) {
		return fmt.Errorf("pipeline: dataset %s maps %d columns, table %s has %d",
			d.Name, len(cols), d.Table.Name, len(want))
	}
	for i := range cols {
		if cols[i] != want[i] {
			return fmt.Errorf("pipeline: dataset %s column %d is %q, table %s expects %q",
				d.Name, i, cols[i], d.Table.Name, want[i])
		}
	}
	return nil
}

// StageError reports the stage at which a dataset failed.
type StageError struct {
	Dataset string
	Stage   Stage
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("dataset %s: %s: %v", e.Dataset, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Status is the outcome of a dataset run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)
