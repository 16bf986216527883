package chunkio

import (
	"context"
	"io"

	"github.com/lakeops/csv-shuttle/cmd/dialect"
)

// ParsedBatch is one decoded chunk: the rows it contained and the
// column count asserted for the whole object.
type ParsedBatch struct {
	Rows    [][]string
	Columns int
}

// BatchReader drives a ChunkReader and decodes each chunk under the
// dialect, carrying the first record's cell count and the running row
// offset across chunks. Errors from decoding are fatal and are never
// repaired.
type BatchReader struct {
	chunks  *ChunkReader
	d       dialect.Dialect
	columns int
	rows    int64
}

// NewBatchReader wraps an already-constructed ChunkReader.
func NewBatchReader(chunks *ChunkReader, d dialect.Dialect) *BatchReader {
	return &BatchReader{chunks: chunks, d: d}
}

// Rows returns the number of records decoded so far.
func (r *BatchReader) Rows() int64 {
	return r.rows
}

// Next returns the next decoded batch, or io.EOF once the object is
// exhausted. A chunk that decodes to zero rows is skipped rather than
// surfaced as an empty batch.
func (r *BatchReader) Next(ctx context.Context) (ParsedBatch, error) {
	for {
		chunk, err := r.chunks.Next(ctx)
		if err != nil {
			if err == io.EOF {
				return ParsedBatch{}, io.EOF
			}
			return ParsedBatch{}, err
		}

		rows, columns, err := dialect.DecodeChunk(chunk, r.d, r.columns, r.rows)
		if err != nil {
			return ParsedBatch{}, err
		}
		r.columns = columns
		if len(rows) == 0 {
			continue
		}
		r.rows += int64(len(rows))
		return ParsedBatch{Rows: rows, Columns: columns}, nil
	}
}
