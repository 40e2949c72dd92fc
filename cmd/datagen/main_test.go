package main

import (
	"errors"
	"testing"
	"time"

	"github.com/tckz/go-datagen/internal/config"
	"github.com/tckz/go-datagen/internal/datagen"
	"github.com/tckz/go-datagen/internal/schema"
	"github.com/tckz/go-datagen/internal/shard"
)

func TestNewManifest(t *testing.T) {
	cfg := config.Default()
	cfg.Threads = 2
	cfg.Seed = 9
	s := &schema.Schema{PublicationsCount: 3, SubscriptionsCount: 2}
	report := &datagen.Report{
		RunID: "run-1",
		Workers: []datagen.Stats{
			{Worker: 0, Shard: "data_0.json", URI: "mem://data_0.json", Subscriptions: 1, Publications: 1, Bytes: 10},
			{Worker: 1, Shard: "data_1.json", URI: "mem://data_1.json", Subscriptions: 1, Publications: 2, Bytes: 20},
		},
		Elapsed: 1500 * time.Millisecond,
	}

	m := newManifest(cfg, s, report, nil)
	if m.Status != shard.StatusOK || m.Error != "" {
		t.Errorf("unexpected status %s %q", m.Status, m.Error)
	}
	if m.RunID != "run-1" || m.Seed != 9 || m.Threads != 2 || m.ElapsedMillis != 1500 {
		t.Errorf("unexpected header %+v", m)
	}
	if len(m.Shards) != 2 || m.Shards[1].Tasks != 3 || m.Shards[1].URI != "mem://data_1.json" {
		t.Errorf("unexpected shards %+v", m.Shards)
	}

	failed := newManifest(cfg, s, report, errors.New("boom"))
	if failed.Status != shard.StatusFailed || failed.Error != "boom" {
		t.Errorf("unexpected failed manifest %+v", failed)
	}
}
