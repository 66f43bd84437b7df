package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ChunkFn writes one chunk of rows and returns the number written.
// Backends implement it with their most efficient primitive (multi-row
// INSERT, COPY, bulk copy, MERGE) inside an open transaction.
type ChunkFn func(ctx context.Context, rows [][]any) (int64, error)

// LoadBatches splits rows into chunks of at most batchSize and calls fn for
// each, stopping at the first error. Progress is logged at debug level on
// every successful chunk.
func LoadBatches(
	ctx context.Context,
	log *zap.Logger,
	table string,
	rows [][]any,
	batchSize int,
	fn ChunkFn,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("storage: batchSize must be > 0")
	}
	if fn == nil {
		return 0, fmt.Errorf("storage: chunk function must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	var (
		total   int64
		batches int
		start   = time.Now()
	)
	for lo := 0; lo < len(rows); lo += batchSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		hi := lo + batchSize
		if hi > len(rows) {
			hi = len(rows)
		}
		n, err := fn(ctx, rows[lo:hi])
		total += n
		if err != nil {
			return total, fmt.Errorf("storage: %s batch %d (rows %d-%d): %w", table, batches+1, lo, hi-1, err)
		}
		batches++
		log.Debug("batch written",
			zap.String("table", table),
			zap.Int("batch", batches),
			zap.Int64("rows", n),
			zap.Int64("total", total),
			zap.Duration("elapsed", time.Since(start).Truncate(time.Millisecond)),
		)
	}
	return total, nil
}
