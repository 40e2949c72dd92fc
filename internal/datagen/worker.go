package datagen

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"

	"github.com/tckz/go-datagen/internal/generate"
	"github.com/tckz/go-datagen/internal/metrics"
	"github.com/tckz/go-datagen/internal/shard"
	"github.com/tckz/go-datagen/internal/task"
)

// Stats is the work done by one worker. It is written only by that worker
// and read after the worker has stopped.
type Stats struct {
	Worker        int
	Shard         string
	URI           string
	Subscriptions int64
	Publications  int64
	Bytes         int64
}

// Tasks is the number of records the worker wrote.
func (s Stats) Tasks() int64 {
	return s.Subscriptions + s.Publications
}

// Worker turns claimed slots into records appended to its own shard.
type Worker struct {
	id          int
	counter     *task.Counter
	builder     *generate.Builder
	sink        shard.Sink
	compression shard.Compression
	metrics     *metrics.Metrics
	log         *slog.Logger
	stats       Stats
}

// Run claims slots until the counter is exhausted or ctx is canceled.
// The shard is finalized on every return path.
func (w *Worker) Run(ctx context.Context) (retErr error) {
	w.metrics.WorkerStarted()
	defer func() {
		w.metrics.WorkerStopped(w.stats.Bytes)

		total := w.counter.Total()
		share := 0.0
		if total > 0 {
			share = float64(w.stats.Tasks()) / float64(total) * 100
		}
		w.log.Info("done",
			"tasks", humanize.Comma(w.stats.Tasks()),
			"share", fmt.Sprintf("%.3f%%", share),
			"err", retErr)
	}()

	// an aborted run still finalizes its shards, and blob writers drop the
	// object when their context is canceled
	sw, err := shard.Open(context.WithoutCancel(ctx), w.sink, w.stats.Shard, w.compression)
	if err != nil {
		return err
	}
	defer func() {
		if err := sw.Close(); err != nil {
			if retErr == nil {
				retErr = err
			} else {
				retErr = multierror.Append(retErr, err)
			}
		}
		w.stats.Bytes = sw.Bytes()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("worker %d aborted: %w", w.id, err)
		}

		index, kind := w.counter.Next()
		var rec generate.Record
		switch kind {
		case task.Stop:
			return nil
		case task.Subscription:
			rec = w.builder.Subscription()
		case task.Publication:
			rec, err = w.builder.Publication()
			if err != nil {
				return fmt.Errorf("worker %d: task %d: %w", w.id, index, err)
			}
		}

		if err := sw.Append(rec); err != nil {
			return fmt.Errorf("worker %d: task %d: %w", w.id, index, err)
		}
		if kind == task.Subscription {
			w.stats.Subscriptions++
		} else {
			w.stats.Publications++
		}
		w.metrics.RecordGenerated(kind)
	}
}

// Stats returns the worker's counters. Call it only after Run has returned.
func (w *Worker) Stats() Stats {
	return w.stats
}
