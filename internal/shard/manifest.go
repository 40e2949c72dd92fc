package shard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Run statuses recorded in a manifest.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Manifest describes the shards produced by one run.
type Manifest struct {
	RunID         string      `json:"run_id"`
	Status        string      `json:"status"`
	Error         string      `json:"error,omitempty"`
	Seed          uint64      `json:"seed"`
	Threads       int         `json:"threads"`
	Publications  uint64      `json:"publications"`
	Subscriptions uint64      `json:"subscriptions"`
	Shards        []ShardInfo `json:"shards"`
	CreatedAt     time.Time   `json:"created_at"`
	ElapsedMillis int64       `json:"elapsed_ms"`
}

// ShardInfo describes one worker's shard.
type ShardInfo struct {
	Worker        int    `json:"worker"`
	Name          string `json:"name"`
	URI           string `json:"uri"`
	Tasks         int64  `json:"tasks"`
	Publications  int64  `json:"publications"`
	Subscriptions int64  `json:"subscriptions"`
	Bytes         int64  `json:"bytes"`
}

// ManifestName returns the manifest object name for a shard prefix.
func ManifestName(prefix string) string {
	return prefix + "manifest.json"
}

// WriteManifest writes m as name on sink.
func WriteManifest(ctx context.Context, sink Sink, name string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	w, err := sink.Create(ctx, name)
	if err != nil {
		return &IOError{Shard: name, Op: "create", Err: err}
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return &IOError{Shard: name, Op: "write", Err: err}
	}
	if err := w.Close(); err != nil {
		return &IOError{Shard: name, Op: "close", Err: err}
	}
	return nil
}
