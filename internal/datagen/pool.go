// Package datagen runs a fixed pool of workers that share one task counter
// and write one shard each.
package datagen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"

	"github.com/tckz/go-datagen/internal/generate"
	"github.com/tckz/go-datagen/internal/logging"
	"github.com/tckz/go-datagen/internal/metrics"
	"github.com/tckz/go-datagen/internal/schema"
	"github.com/tckz/go-datagen/internal/shard"
	"github.com/tckz/go-datagen/internal/task"
)

// Config is what a Pool needs to run.
type Config struct {
	Threads int
	Schema  *schema.Schema
	Sink    shard.Sink

	// Prefix of shard names, "data_" when empty.
	Prefix      string
	Compression shard.Compression

	// Seed makes worker random sources reproducible; 0 picks random seeds.
	Seed uint64

	RunID   string
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// DefaultPrefix is the shard name prefix used when none is configured.
const DefaultPrefix = "data_"

// Report is the outcome of a joined pool.
type Report struct {
	RunID   string
	Workers []Stats
	Elapsed time.Duration
}

// Totals sums the records written by all workers.
func (r *Report) Totals() (subscriptions, publications int64) {
	for _, s := range r.Workers {
		subscriptions += s.Subscriptions
		publications += s.Publications
	}
	return
}

// Pool owns the workers of one run.
type Pool struct {
	runID   string
	workers []*Worker
	errs    []error
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started time.Time
	metrics *metrics.Metrics
	log     *slog.Logger
}

// Start launches cfg.Threads workers and returns without waiting for them.
func Start(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.Threads < 1 {
		return nil, fmt.Errorf("threads must be at least 1: %d", cfg.Threads)
	}
	if cfg.Schema == nil {
		return nil, errors.New("schema is required")
	}
	if total := cfg.Schema.TotalTasks(); total > math.MaxInt64 {
		return nil, &schema.SchemaError{Msg: fmt.Sprintf("total task count %d overflows", total)}
	}
	if cfg.Sink == nil {
		return nil, errors.New("sink is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Compression == "" {
		cfg.Compression = shard.CompressionNone
	}
	if cfg.RunID == "" {
		cfg.RunID = logging.NewRunID()
	}
	log := logging.RunLogger(cfg.Logger, cfg.RunID)

	counter := task.NewCounter(cfg.Schema.PublicationsCount, cfg.Schema.SubscriptionsCount)
	log.Info("input size",
		"publications", humanize.Comma(int64(cfg.Schema.PublicationsCount)),
		"subscriptions", humanize.Comma(int64(cfg.Schema.SubscriptionsCount)),
		"threads", cfg.Threads)

	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		runID:   cfg.RunID,
		workers: make([]*Worker, cfg.Threads),
		errs:    make([]error, cfg.Threads),
		cancel:  cancel,
		started: time.Now(),
		metrics: cfg.Metrics,
		log:     log,
	}

	for i := 0; i < cfg.Threads; i++ {
		name := shard.Name(cfg.Prefix, i, cfg.Compression)
		w := &Worker{
			id:          i,
			counter:     counter,
			builder:     generate.NewBuilder(cfg.Schema, generate.NewSeeded(cfg.Seed, uint64(i))),
			sink:        cfg.Sink,
			compression: cfg.Compression,
			metrics:     cfg.Metrics,
			log:         logging.WorkerLogger(log, i),
			stats:       Stats{Worker: i, Shard: name, URI: cfg.Sink.URI(name)},
		}
		p.workers[i] = w

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			err := w.Run(ctx)
			if err == nil {
				return
			}
			p.errs[i] = err
			errType := classify(err)
			p.metrics.WorkerFailed(errType)
			// every worker shares the schema and would fail the same way
			if errType == metrics.ErrorSchema {
				cancel()
			}
		}()
	}

	return p, nil
}

// Join waits until every worker has stopped. The error aggregates the fatal
// errors of all workers; workers stopped only because a sibling failed are
// left out when a root cause is known.
func (p *Pool) Join() (*Report, error) {
	p.wg.Wait()
	p.cancel()

	report := &Report{
		RunID:   p.runID,
		Workers: make([]Stats, len(p.workers)),
		Elapsed: time.Since(p.started),
	}
	for i, w := range p.workers {
		report.Workers[i] = w.Stats()
	}
	p.metrics.RunFinished(report.Elapsed)

	subs, pubs := report.Totals()
	p.log.Info("all workers done",
		"subscriptions", humanize.Comma(subs),
		"publications", humanize.Comma(pubs),
		"dur", report.Elapsed)

	return report, p.aggregate()
}

// Run starts a pool and joins it.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	p, err := Start(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return p.Join()
}

func (p *Pool) aggregate() error {
	var causes, aborted []error
	for _, err := range p.errs {
		if err == nil {
			continue
		}
		if classify(err) == metrics.ErrorAborted {
			aborted = append(aborted, err)
		} else {
			causes = append(causes, err)
		}
	}
	if len(causes) == 0 {
		causes = aborted
	}
	if len(causes) == 0 {
		return nil
	}
	if len(causes) == 1 {
		return causes[0]
	}
	return multierror.Append(nil, causes...)
}

func classify(err error) string {
	switch {
	case errors.Is(err, schema.ErrSchema):
		return metrics.ErrorSchema
	case errors.Is(err, shard.ErrIO):
		return metrics.ErrorIO
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.ErrorAborted
	default:
		return metrics.ErrorOther
	}
}
