package shard

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	_ "gocloud.dev/blob/memblob"  // mem:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver
)

// BlobSink writes shards to a gocloud.dev bucket.
type BlobSink struct {
	bucket *blob.Bucket
	base   string
}

// OpenBlobSink opens the bucket at bucketURL.
func OpenBlobSink(ctx context.Context, bucketURL string) (*BlobSink, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	return &BlobSink{bucket: bucket, base: bucketBase(bucketURL)}, nil
}

// NewBlobSink wraps an already opened bucket. base is used only to build URIs.
func NewBlobSink(bucket *blob.Bucket, base string) *BlobSink {
	return &BlobSink{bucket: bucket, base: base}
}

// Create opens a writer for the object name.
func (s *BlobSink) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	w, err := s.bucket.NewWriter(ctx, name, &blob.WriterOptions{
		ContentType: contentType(name),
	})
	if err != nil {
		return nil, fmt.Errorf("create writer for %s: %w", name, err)
	}
	return w, nil
}

// URI returns the bucket location of name.
func (s *BlobSink) URI(name string) string {
	return strings.TrimSuffix(s.base, "/") + "/" + name
}

// Bucket exposes the underlying bucket.
func (s *BlobSink) Bucket() *blob.Bucket {
	return s.bucket
}

// Close releases the bucket connection.
func (s *BlobSink) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

// bucketBase strips the driver query parameters from a bucket URL, keeping
// the prefix parameter as a path.
func bucketBase(bucketURL string) string {
	u, err := url.Parse(bucketURL)
	if err != nil {
		return bucketURL
	}
	prefix := u.Query().Get("prefix")
	u.RawQuery = ""
	base := strings.TrimSuffix(u.String(), "/")
	if u.Host == "" && u.Path == "" {
		base = u.Scheme + "://"
	}
	if prefix != "" {
		base = strings.TrimSuffix(base, "/") + "/" + strings.Trim(prefix, "/")
	}
	return base
}

func contentType(name string) string {
	if strings.HasSuffix(name, ".zst") {
		return "application/zstd"
	}
	return "application/json"
}
