package cmd

import (
	"bytes"
	"crypto/md5" //nolint:gosec // MD5 used for checksums, not cryptography
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func TestParseS3Path(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{
			name:       "simple path",
			path:       "s3://my-bucket/data.csv",
			wantBucket: "my-bucket",
			wantKey:    "data.csv",
		},
		{
			name:       "nested key",
			path:       "s3://lake/exports/flights/2026/08/part-1.csv.zst",
			wantBucket: "lake",
			wantKey:    "exports/flights/2026/08/part-1.csv.zst",
		},
		{
			name:    "missing scheme",
			path:    "my-bucket/data.csv",
			wantErr: true,
		},
		{
			name:    "bucket only",
			path:    "s3://my-bucket",
			wantErr: true,
		},
		{
			name:    "empty key",
			path:    "s3://my-bucket/",
			wantErr: true,
		},
		{
			name:    "empty string",
			path:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := ParseS3Path(tt.path)
			if tt.wantErr {
				if !errors.Is(err, ErrS3PathInvalid) {
					t.Fatalf("expected ErrS3PathInvalid, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if bucket != tt.wantBucket || key != tt.wantKey {
				t.Fatalf("got bucket=%q key=%q, want bucket=%q key=%q", bucket, key, tt.wantBucket, tt.wantKey)
			}
		})
	}
}

func TestCalculateMultipartETag(t *testing.T) {
	t.Run("single part matches plain MD5", func(t *testing.T) {
		data := []byte("small payload")
		want := hex.EncodeToString(func() []byte {
			sum := md5.Sum(data) //nolint:gosec // checksum only
			return sum[:]
		}())

		got := calculateMultipartETag(data)
		if got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	})

	t.Run("multipart carries part count suffix", func(t *testing.T) {
		// Two 5MB parts plus a tail
		data := bytes.Repeat([]byte("x"), 11*1024*1024)

		got := calculateMultipartETag(data)
		if !strings.HasSuffix(got, "-3") {
			t.Fatalf("expected 3-part ETag suffix, got %s", got)
		}
		if len(got) != 32+len("-3") {
			t.Fatalf("unexpected ETag length: %s", got)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		data := bytes.Repeat([]byte("abcd"), 3*1024*1024)
		if calculateMultipartETag(data) != calculateMultipartETag(data) {
			t.Fatal("ETag should be deterministic")
		}
	})

	t.Run("empty data", func(t *testing.T) {
		got := calculateMultipartETag([]byte{})
		if len(got) != 32 {
			t.Fatalf("expected plain MD5 hex for empty data, got %s", got)
		}
	})
}
