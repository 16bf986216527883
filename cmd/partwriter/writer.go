// Package partwriter fans a decoded table out to a fixed worker pool,
// one contiguous row partition per worker, and reconciles the reported
// output objects against the dispatched partition count.
package partwriter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Static errors for writer construction
var (
	ErrNoSink         = errors.New("partition sink is required")
	ErrWorkersMinimum = errors.New("workers must be at least 1")
	ErrNoColumns      = errors.New("table has no columns")
)

// defaultRowThreshold is the row count below which a table is written
// as a single partition; splitting tiny tables buys nothing.
const defaultRowThreshold = 1000

// Table is the in-memory unit handed to WriteTable.
type Table struct {
	Columns []string
	Rows    [][]string
}

// PartitionJob identifies one contiguous slice of table rows assigned
// to a worker. Start is inclusive, End exclusive.
type PartitionJob struct {
	WorkerIndex int
	Start       int
	End         int
	Destination string
}

// PartitionSink receives one partition's rows and reports the output
// object paths it produced. Implementations are called concurrently.
type PartitionSink interface {
	WritePartition(ctx context.Context, columns []string, rows [][]string, job PartitionJob) ([]string, error)
}

// WriteResult lists every object path produced for a table, sorted.
type WriteResult struct {
	Paths []string
}

// MissingBatchError means the reconciliation count failed: fewer (or
// more) partitions reported paths than were dispatched.
type MissingBatchError struct {
	Expected int
	Actual   int
}

func (e *MissingBatchError) Error() string {
	return fmt.Sprintf("partition reconciliation failed: expected %d path lists, got %d", e.Expected, e.Actual)
}

// Writer coordinates parallel partition writes through a sink.
type Writer struct {
	sink         PartitionSink
	workers      int
	rowThreshold int
	logger       *slog.Logger
}

// NewWriter builds a Writer over sink with a fixed worker count.
func NewWriter(sink PartitionSink, workers int, logger *slog.Logger) (*Writer, error) {
	if sink == nil {
		return nil, ErrNoSink
	}
	if workers < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrWorkersMinimum, workers)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		sink:         sink,
		workers:      workers,
		rowThreshold: defaultRowThreshold,
		logger:       logger,
	}, nil
}

// WithRowThreshold overrides the single-partition cutoff.
func (w *Writer) WithRowThreshold(threshold int) *Writer {
	if threshold > 0 {
		w.rowThreshold = threshold
	}
	return w
}

// PartitionCount reports how many partitions a table of n rows splits
// into: one below the threshold or with a single worker, otherwise the
// worker count capped by the row count.
func (w *Writer) PartitionCount(n int) int {
	if n == 0 {
		return 0
	}
	if w.workers <= 1 || n < w.rowThreshold {
		return 1
	}
	if n < w.workers {
		return n
	}
	return w.workers
}

// splitBounds cuts n rows into parts contiguous [start, end) ranges,
// front-loading the remainder one row at a time.
func splitBounds(n, parts int) [][2]int {
	bounds := make([][2]int, 0, parts)
	base := n / parts
	rem := n % parts
	start := 0
	for i := 0; i < parts; i++ {
		size := base
		if i < rem {
			size++
		}
		bounds = append(bounds, [2]int{start, start + size})
		start += size
	}
	return bounds
}

type partitionResult struct {
	job   PartitionJob
	paths []string
	err   error
}

// WriteTable splits the table, dispatches one job per partition to the
// worker pool, and blocks until every partition reports. The first
// worker error wins; a clean run whose reported path-list count
// differs from the dispatched partition count fails with
// MissingBatchError.
func (w *Writer) WriteTable(ctx context.Context, table Table, destination string) (WriteResult, error) {
	if len(table.Columns) == 0 {
		return WriteResult{}, ErrNoColumns
	}

	parts := w.PartitionCount(len(table.Rows))
	if parts == 0 {
		return WriteResult{Paths: []string{}}, nil
	}
	bounds := splitBounds(len(table.Rows), parts)

	w.logger.Debug(fmt.Sprintf("Dispatching %d partition(s) across %d worker(s) for %d rows", parts, w.workers, len(table.Rows)))

	jobs := make(chan PartitionJob, parts)
	results := make(chan partitionResult, parts)

	pool := w.workers
	if parts < pool {
		pool = parts
	}
	for i := 0; i < pool; i++ {
		go func() {
			for job := range jobs {
				paths, err := w.sink.WritePartition(ctx, table.Columns, table.Rows[job.Start:job.End], job)
				results <- partitionResult{job: job, paths: paths, err: err}
			}
		}()
	}

	for i, b := range bounds {
		jobs <- PartitionJob{WorkerIndex: i, Start: b[0], End: b[1], Destination: destination}
	}
	close(jobs)

	var (
		reported int
		paths    []string
		firstErr error
	)
	for i := 0; i < parts; i++ {
		res := <-results
		if res.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("partition %d (rows %d-%d): %w", res.job.WorkerIndex, res.job.Start, res.job.End, res.err)
			}
			continue
		}
		if res.paths != nil {
			reported++
			paths = append(paths, res.paths...)
		}
		w.logger.Debug(fmt.Sprintf("Partition %d reported %d object(s)", res.job.WorkerIndex, len(res.paths)))
	}
	if firstErr != nil {
		return WriteResult{}, firstErr
	}

	if reported != parts {
		return WriteResult{}, &MissingBatchError{Expected: parts, Actual: reported}
	}

	sort.Strings(paths)
	return WriteResult{Paths: paths}, nil
}
