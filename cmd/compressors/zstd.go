package compressors

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// ZstdCompressor handles Zstandard compression
type ZstdCompressor struct {
	concurrency int
}

// NewZstdCompressor creates a new Zstandard compressor
func NewZstdCompressor() *ZstdCompressor {
	return &ZstdCompressor{concurrency: 1}
}

// WithConcurrency sets the encoder goroutine count
func (c *ZstdCompressor) WithConcurrency(n int) *ZstdCompressor {
	if n > 0 {
		c.concurrency = n
	}
	return c
}

// Compress compresses data using Zstandard. Levels follow the zstd
// CLI scale (1-22) and map onto the encoder's speed tiers.
func (c *ZstdCompressor) Compress(data []byte, level int) ([]byte, error) {
	if level < 1 {
		level = c.DefaultLevel()
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(c.concurrency))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Decompress inflates a zstd payload, used by round-trip verification
func (c *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer decoder.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(decoder.IOReadCloser()); err != nil {
		return nil, fmt.Errorf("failed to decompress data: %w", err)
	}
	return out.Bytes(), nil
}

// Extension returns the file extension for Zstandard compression
func (c *ZstdCompressor) Extension() string {
	return ".zst"
}

// ContentEncoding returns the Content-Encoding for zstd payloads
func (c *ZstdCompressor) ContentEncoding() string {
	return "zstd"
}

// DefaultLevel returns the default compression level for Zstandard
func (c *ZstdCompressor) DefaultLevel() int {
	return 3
}
