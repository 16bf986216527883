package compressors

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/pierrec/lz4/v4"
)

func TestGetCompressor(t *testing.T) {
	for _, name := range []string{"zstd", "lz4", "gzip", "none", ""} {
		t.Run("valid_"+name, func(t *testing.T) {
			if _, err := GetCompressor(name); err != nil {
				t.Errorf("GetCompressor(%q) error = %v", name, err)
			}
		})
	}

	if _, err := GetCompressor("brotli"); !errors.Is(err, ErrUnsupportedCompression) {
		t.Errorf("GetCompressor(brotli) error = %v, want ErrUnsupportedCompression", err)
	}
}

func TestCompressRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("id,name,payload\n1,alpha,aaaaaaaa\n", 64))

	t.Run("zstd", func(t *testing.T) {
		c := NewZstdCompressor()
		compressed, err := c.Compress(payload, c.DefaultLevel())
		if err != nil {
			t.Fatalf("Compress() error = %v", err)
		}
		if len(compressed) >= len(payload) {
			t.Errorf("compressed %d bytes, want smaller than %d", len(compressed), len(payload))
		}
		out, err := c.Decompress(compressed)
		if err != nil {
			t.Fatalf("Decompress() error = %v", err)
		}
		if !bytes.Equal(out, payload) {
			t.Error("round trip mismatch")
		}
	})

	t.Run("gzip", func(t *testing.T) {
		c := NewGzipCompressor()
		compressed, err := c.Compress(payload, c.DefaultLevel())
		if err != nil {
			t.Fatalf("Compress() error = %v", err)
		}
		r, err := gzip.NewReader(bytes.NewReader(compressed))
		if err != nil {
			t.Fatalf("gzip.NewReader() error = %v", err)
		}
		out, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("ReadAll() error = %v", err)
		}
		if !bytes.Equal(out, payload) {
			t.Error("round trip mismatch")
		}
	})

	t.Run("lz4", func(t *testing.T) {
		c := NewLZ4Compressor()
		compressed, err := c.Compress(payload, c.DefaultLevel())
		if err != nil {
			t.Fatalf("Compress() error = %v", err)
		}
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(compressed)))
		if err != nil {
			t.Fatalf("ReadAll() error = %v", err)
		}
		if !bytes.Equal(out, payload) {
			t.Error("round trip mismatch")
		}
	})

	t.Run("none", func(t *testing.T) {
		c := NewNoneCompressor()
		out, err := c.Compress(payload, 0)
		if err != nil {
			t.Fatalf("Compress() error = %v", err)
		}
		if !bytes.Equal(out, payload) {
			t.Error("none compressor altered data")
		}
	})
}

func TestExtensions(t *testing.T) {
	tests := []struct {
		compression string
		ext         string
		encoding    string
	}{
		{"zstd", ".zst", "zstd"},
		{"gzip", ".gz", "gzip"},
		{"lz4", ".lz4", ""},
		{"none", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.compression, func(t *testing.T) {
			c, err := GetCompressor(tt.compression)
			if err != nil {
				t.Fatalf("GetCompressor() error = %v", err)
			}
			if got := c.Extension(); got != tt.ext {
				t.Errorf("Extension() = %q, want %q", got, tt.ext)
			}
			if got := c.ContentEncoding(); got != tt.encoding {
				t.Errorf("ContentEncoding() = %q, want %q", got, tt.encoding)
			}
		})
	}
}
