package shard

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalSink writes shards to a directory.
type LocalSink struct {
	baseDir string
}

// NewLocalSink creates the base directory if needed.
func NewLocalSink(baseDir string) (*LocalSink, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", baseDir, err)
	}
	return &LocalSink{baseDir: baseDir}, nil
}

// Create creates (or truncates) the file for name.
func (s *LocalSink) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	path := filepath.Join(s.baseDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("os.Create: %w", err)
	}
	return f, nil
}

// URI returns the file URI of name.
func (s *LocalSink) URI(name string) string {
	path := filepath.Join(s.baseDir, name)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return "file://" + path
}

// Close is a no-op for local storage.
func (s *LocalSink) Close() error {
	return nil
}
