package cmd

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // MD5 used for checksums, not cryptography
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// Error definitions
var (
	ErrS3ClientNotInitialized   = errors.New("S3 client not initialized")
	ErrS3UploaderNotInitialized = errors.New("S3 uploader not initialized")
	ErrObjectMissingSize        = errors.New("object has no content length")
	ErrS3PathInvalid            = errors.New("S3 path must look like s3://bucket/key")
)

// newS3Session builds an AWS session for S3-compatible endpoints.
func newS3Session(cfg S3Config) (*session.Session, error) {
	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(cfg.Endpoint),
		Region:           aws.String(cfg.Region),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}
	return sess, nil
}

// ParseS3Path splits an s3://bucket/key path into bucket and key.
func ParseS3Path(path string) (string, string, error) {
	trimmed := strings.TrimPrefix(path, "s3://")
	if trimmed == path {
		return "", "", fmt.Errorf("%w: got '%s'", ErrS3PathInvalid, path)
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: got '%s'", ErrS3PathInvalid, path)
	}
	return parts[0], parts[1], nil
}

// s3ObjectFetcher reads one object through ranged GETs.
type s3ObjectFetcher struct {
	client *s3.S3
	bucket string
	key    string
}

func newS3ObjectFetcher(client *s3.S3, bucket, key string) *s3ObjectFetcher {
	return &s3ObjectFetcher{client: client, bucket: bucket, key: key}
}

func (f *s3ObjectFetcher) Size(ctx context.Context) (int64, error) {
	if f.client == nil {
		return 0, ErrS3ClientNotInitialized
	}
	head, err := f.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.key),
	})
	if err != nil {
		return 0, fmt.Errorf("heading s3://%s/%s: %w", f.bucket, f.key, err)
	}
	if head.ContentLength == nil {
		return 0, fmt.Errorf("%w: s3://%s/%s", ErrObjectMissingSize, f.bucket, f.key)
	}
	return *head.ContentLength, nil
}

func (f *s3ObjectFetcher) FetchRange(ctx context.Context, start, length int64) ([]byte, error) {
	if f.client == nil {
		return nil, ErrS3ClientNotInitialized
	}
	// Range ends are inclusive; S3 clamps past-the-end ranges itself
	byteRange := fmt.Sprintf("bytes=%d-%d", start, start+length-1)
	out, err := f.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.key),
		Range:  aws.String(byteRange),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s of s3://%s/%s: %w", byteRange, f.bucket, f.key, err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	buf.Grow(int(length))
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("reading %s of s3://%s/%s: %w", byteRange, f.bucket, f.key, err)
	}
	return buf.Bytes(), nil
}

// objectStore uploads partition payloads, skipping objects that already
// exist with matching content.
type objectStore struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
	logger   *slog.Logger
}

func newObjectStore(sess *session.Session, bucket string, logger *slog.Logger) *objectStore {
	return &objectStore{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		bucket:   bucket,
		logger:   logger,
	}
}

func (o *objectStore) checkObjectExists(ctx context.Context, key string) (bool, int64, string) {
	if o.client == nil {
		o.logger.Error("S3 client not initialized")
		return false, 0, ""
	}

	result, err := o.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, 0, ""
	}

	var size int64
	var etag string
	if result.ContentLength != nil {
		size = *result.ContentLength
	}
	if result.ETag != nil {
		etag = *result.ETag
	}
	return true, size, etag
}

// objectUnchanged reports whether the object at key already holds data,
// comparing size then single-part MD5 or multipart ETag.
func (o *objectStore) objectUnchanged(ctx context.Context, key string, data []byte) bool {
	exists, s3Size, s3ETag := o.checkObjectExists(ctx, key)
	if !exists {
		return false
	}
	if s3Size != int64(len(data)) {
		o.logger.Debug(fmt.Sprintf("  Size mismatch for %s: S3=%d, local=%d", key, s3Size, len(data)))
		return false
	}

	s3ETag = strings.Trim(s3ETag, "\"")
	if strings.Contains(s3ETag, "-") {
		localETag := calculateMultipartETag(data)
		if s3ETag == localETag {
			o.logger.Debug(fmt.Sprintf("  ✅ %s unchanged (multipart ETag %s)", key, s3ETag))
			return true
		}
		o.logger.Debug(fmt.Sprintf("  Multipart ETag mismatch for %s: S3=%s, local=%s", key, s3ETag, localETag))
		return false
	}

	localMD5 := fmt.Sprintf("%x", md5.Sum(data)) //nolint:gosec // MD5 used for checksums, not cryptography
	if s3ETag == localMD5 {
		o.logger.Debug(fmt.Sprintf("  ✅ %s unchanged (MD5 %s)", key, s3ETag))
		return true
	}
	o.logger.Debug(fmt.Sprintf("  MD5 mismatch for %s: S3=%s, local=%s", key, s3ETag, localMD5))
	return false
}

func (o *objectStore) upload(ctx context.Context, key string, data []byte, contentEncoding string) error {
	o.logger.Debug(fmt.Sprintf("  ☁️  Uploading to s3://%s/%s (size: %d bytes)", o.bucket, key, len(data)))

	// Use multipart upload for objects larger than 100MB
	if len(data) > 100*1024*1024 {
		if o.uploader == nil {
			return ErrS3UploaderNotInitialized
		}
		uploadInput := &s3manager.UploadInput{
			Bucket:      aws.String(o.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("text/csv"),
		}
		if contentEncoding != "" {
			uploadInput.ContentEncoding = aws.String(contentEncoding)
		}
		_, err := o.uploader.UploadWithContext(ctx, uploadInput)
		return err
	}

	if o.client == nil {
		return ErrS3ClientNotInitialized
	}
	putInput := &s3.PutObjectInput{
		Bucket:      aws.String(o.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
	}
	if contentEncoding != "" {
		putInput.ContentEncoding = aws.String(contentEncoding)
	}
	_, err := o.client.PutObjectWithContext(ctx, putInput)
	return err
}

// calculateMultipartETag calculates the ETag S3 reports for multipart
// uploads, using the 5MB part size s3manager defaults to.
func calculateMultipartETag(data []byte) string {
	const partSize = 5 * 1024 * 1024

	numParts := (len(data) + partSize - 1) / partSize
	if numParts <= 1 {
		hasher := md5.New() //nolint:gosec // MD5 used for checksums, not cryptography
		hasher.Write(data)
		return hex.EncodeToString(hasher.Sum(nil))
	}

	var partMD5s []byte
	for i := 0; i < numParts; i++ {
		start := i * partSize
		end := start + partSize
		if end > len(data) {
			end = len(data)
		}
		partHasher := md5.New() //nolint:gosec // MD5 used for checksums, not cryptography
		partHasher.Write(data[start:end])
		partMD5s = append(partMD5s, partHasher.Sum(nil)...)
	}

	finalHasher := md5.New() //nolint:gosec // MD5 used for checksums, not cryptography
	finalHasher.Write(partMD5s)
	return fmt.Sprintf("%s-%d", hex.EncodeToString(finalHasher.Sum(nil)), numParts)
}
