// Package shard writes worker-owned output documents to a storage sink.
package shard

import (
	"context"
	"fmt"
	"io"
)

// Sink creates named output objects.
type Sink interface {
	// Create opens a new object for writing. The object is complete once the
	// returned writer is closed.
	Create(ctx context.Context, name string) (io.WriteCloser, error)

	// URI returns the canonical location of name.
	// For local: file:///path, for buckets: the bucket URL joined with name.
	URI(name string) string

	// Close releases any resources.
	Close() error
}

// Sink backends.
const (
	BackendLocal = "local"
	BackendBlob  = "blob"
)

// SinkConfig configures the shard sink.
type SinkConfig struct {
	Backend string // "local" | "blob"

	// Local filesystem
	LocalDir string

	// Bucket URL understood by gocloud.dev/blob:
	// file:///path, s3://bucket?region=..., gs://bucket, mem://
	BucketURL string
}

// NewSink creates a sink based on configuration.
func NewSink(ctx context.Context, cfg SinkConfig) (Sink, error) {
	switch cfg.Backend {
	case BackendLocal:
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return NewLocalSink(cfg.LocalDir)
	case BackendBlob:
		if cfg.BucketURL == "" {
			return nil, fmt.Errorf("BucketURL required for blob backend")
		}
		return OpenBlobSink(ctx, cfg.BucketURL)
	default:
		return nil, fmt.Errorf("unknown sink backend: %s", cfg.Backend)
	}
}
