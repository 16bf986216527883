// Package chunkio reads delimited text objects through bounded byte
// windows, trimming every non-final window at a quote-safe record
// boundary so each chunk can be parsed on its own.
package chunkio

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/lakeops/csv-shuttle/cmd/dialect"
)

// Static errors for reader construction
var (
	ErrBudgetMinimum  = errors.New("chunk budget must be at least 1 byte")
	ErrGrowthMinimum  = errors.New("window growth limit must be >= 0")
	ErrObjectConsumed = errors.New("reader is exhausted and cannot be restarted")
)

// defaultGrowthLimit bounds how many times a window may double while
// hunting for a record boundary before the chunk is declared oversized.
const defaultGrowthLimit = 5

// RangeFetcher is the capability a ChunkReader reads through. Size
// reports the object's total byte length; FetchRange returns exactly
// the bytes [start, start+length), clamped by the caller to the object
// end.
type RangeFetcher interface {
	Size(ctx context.Context) (int64, error)
	FetchRange(ctx context.Context, start, length int64) ([]byte, error)
}

// ChunkTooLargeError means a single record outgrew the maximum window
// the reader was allowed to fetch. The object cannot be read under the
// configured budget.
type ChunkTooLargeError struct {
	Offset int64
	Window int64
	Limit  int64
}

func (e *ChunkTooLargeError) Error() string {
	return fmt.Sprintf("no record boundary within %d bytes at offset %d (window limit %d)", e.Window, e.Offset, e.Limit)
}

// ChunkReader yields consecutive quote-safe chunks of one object. It is
// pull-driven with a single outstanding fetch and is not restartable:
// once Next returns io.EOF or a fatal error the reader is spent.
type ChunkReader struct {
	fetcher RangeFetcher
	d       dialect.Dialect
	budget  int64
	limit   int64

	size   int64
	sized  bool
	offset int64
	carry  []byte
	done   bool
}

// NewChunkReader builds a reader that fetches windows of budget bytes,
// doubling up to growthLimit times when a window holds no record
// boundary. Pass growthLimit < 0 for the default.
func NewChunkReader(fetcher RangeFetcher, d dialect.Dialect, budget int64, growthLimit int) (*ChunkReader, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if budget < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrBudgetMinimum, budget)
	}
	if growthLimit < 0 {
		growthLimit = defaultGrowthLimit
	}
	return &ChunkReader{
		fetcher: fetcher,
		d:       d,
		budget:  budget,
		limit:   budget << growthLimit,
	}, nil
}

// Offset returns the number of object bytes consumed so far.
func (r *ChunkReader) Offset() int64 {
	return r.offset - int64(len(r.carry))
}

// Next returns the next quote-safe chunk, or io.EOF once the object is
// exhausted. Every chunk but the last ends with the terminator
// sequence; concatenating all chunks reproduces the object exactly.
func (r *ChunkReader) Next(ctx context.Context) ([]byte, error) {
	if r.done {
		return nil, io.EOF
	}

	if !r.sized {
		size, err := r.fetcher.Size(ctx)
		if err != nil {
			return nil, fmt.Errorf("sizing object: %w", err)
		}
		r.size = size
		r.sized = true
	}

	window := r.budget
	for {
		remaining := r.size - r.offset
		if remaining <= 0 {
			r.done = true
			if len(r.carry) > 0 {
				tail := r.carry
				r.carry = nil
				return tail, nil
			}
			return nil, io.EOF
		}

		want := window
		if want > remaining {
			want = remaining
		}
		fetched, err := r.fetcher.FetchRange(ctx, r.offset, want)
		if err != nil {
			return nil, fmt.Errorf("fetching range at offset %d: %w", r.offset, err)
		}

		buf := append(r.carry, fetched...)

		// the final range needs no boundary: the object end is one
		if r.offset+want >= r.size {
			r.offset += want
			r.carry = nil
			r.done = true
			return buf, nil
		}

		idx, err := dialect.FindTerminator(buf, r.d)
		if errors.Is(err, dialect.ErrTerminatorNotFound) {
			if window >= r.limit {
				return nil, &ChunkTooLargeError{Offset: r.offset, Window: window, Limit: r.limit}
			}
			window *= 2
			if window > r.limit {
				window = r.limit
			}
			continue
		}

		cut := idx + len(r.d.Terminator)
		chunk := buf[:cut]
		r.carry = append([]byte(nil), buf[cut:]...)
		r.offset += want
		return chunk, nil
	}
}
