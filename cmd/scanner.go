package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/lakeops/csv-shuttle/cmd/chunkio"
	"github.com/lakeops/csv-shuttle/cmd/dialect"
)

// ScanSummary is the final accounting of one scan run.
type ScanSummary struct {
	Source   string
	Bytes    int64
	Chunks   int
	Rows     int64
	Columns  int
	Duration time.Duration
}

// Scanner streams a remote CSV object through ranged reads and writes
// the parsed rows back out, re-encoded in the configured dialect.
type Scanner struct {
	config *Config
	logger *slog.Logger
}

func NewScanner(config *Config, logger *slog.Logger) *Scanner {
	return &Scanner{config: config, logger: logger}
}

// Run streams the source object to the configured output. Output ""
// means stdout.
func (s *Scanner) Run(ctx context.Context) (ScanSummary, error) {
	summary := ScanSummary{Source: s.config.Source}
	startTime := time.Now()

	bucket, key, err := ParseS3Path(s.config.Source)
	if err != nil {
		return summary, err
	}

	d, err := s.config.Dialect.Dialect()
	if err != nil {
		return summary, err
	}

	sess, err := newS3Session(s.config.S3)
	if err != nil {
		return summary, err
	}
	fetcher := newS3ObjectFetcher(s3.New(sess), bucket, key)

	budget := s.config.ChunkBudget
	if budget == 0 {
		budget = 8 << 20
	}
	reader, err := chunkio.NewChunkReader(fetcher, d, budget, s.config.WindowGrowthLimit)
	if err != nil {
		return summary, err
	}
	batches := chunkio.NewBatchReader(reader, d)

	var out io.WriteCloser = os.Stdout
	toFile := s.config.Output != ""
	if toFile {
		f, err := os.Create(s.config.Output)
		if err != nil {
			return summary, fmt.Errorf("creating output file: %w", err)
		}
		out = f
	}
	defer func() {
		if toFile {
			out.Close()
		}
	}()

	s.logger.Debug(fmt.Sprintf("🚀 Scanning s3://%s/%s (budget %d bytes)", bucket, key, budget))

	for {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		batch, err := batches.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return summary, fmt.Errorf("reading batch at offset %d: %w", reader.Offset(), err)
		}

		encoded := dialect.EncodeRows(batch.Rows, d)
		n, err := out.Write(encoded)
		if err != nil {
			return summary, fmt.Errorf("writing output: %w", err)
		}

		summary.Bytes += int64(n)
		summary.Chunks++
		summary.Rows += int64(len(batch.Rows))
		summary.Columns = batch.Columns
	}

	summary.Duration = time.Since(startTime)
	s.printSummary(summary)
	return summary, nil
}

func (s *Scanner) printSummary(summary ScanSummary) {
	s.logger.Info("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	s.logger.Info("📈 Summary")
	s.logger.Info(fmt.Sprintf("✅ Rows scanned: %d (%d columns)", summary.Rows, summary.Columns))
	s.logger.Info(fmt.Sprintf("📦 Chunks: %d", summary.Chunks))
	s.logger.Info(fmt.Sprintf("💾 Bytes written: %d", summary.Bytes))
	s.logger.Info(fmt.Sprintf("⏱️  Duration: %s", summary.Duration.Round(time.Millisecond)))
}
