package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tckz/go-datagen/internal/config"
	"github.com/tckz/go-datagen/internal/datagen"
	"github.com/tckz/go-datagen/internal/logging"
	"github.com/tckz/go-datagen/internal/metrics"
	"github.com/tckz/go-datagen/internal/schema"
	"github.com/tckz/go-datagen/internal/shard"
)

var (
	optConfig      = flag.String("config", "", "path/to/datagen.yaml")
	optSchema      = flag.String("schema", "", "path/to/schema.json")
	optThreads     = flag.Int("threads", 0, "number of workers (default: number of CPUs)")
	optSeed        = flag.Uint64("seed", 0, "random seed, 0 means random")
	optSink        = flag.String("sink", "local", "where to write shards: local | blob")
	optOut         = flag.String("out", ".", "path/to/out/dir for local sink")
	optBucket      = flag.String("bucket", "", "bucket URL for blob sink, e.g. s3://bucket?region=ap-northeast-1")
	optPrefix      = flag.String("prefix", "data_", "prefix of shard names")
	optCompression = flag.String("compression", "none", "shard compression: none | zstd")
	optManifest    = flag.Bool("manifest", true, "write run manifest next to the shards")
	optLogFormat   = flag.String("log-format", "text", "log format: text | json")
	optLogLevel    = flag.String("log-level", "info", "log level")
	optMetricsAddr = flag.String("metrics-addr", "", "address to serve /metrics on while running")
	optVersion     = flag.Bool("version", false, "show version")
)

var version string

func main() {
	flag.Parse()

	if *optVersion {
		fmt.Println(version)
		return
	}

	if err := run(); err != nil {
		log.Fatalf("*** %v", err)
	}
}

// applyFlags overrides the file configuration with explicitly set flags.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "schema":
			cfg.Schema = *optSchema
		case "threads":
			cfg.Threads = *optThreads
		case "seed":
			cfg.Seed = *optSeed
		case "sink":
			cfg.Output.Sink = *optSink
		case "out":
			cfg.Output.Dir = *optOut
		case "bucket":
			cfg.Output.BucketURL = *optBucket
		case "prefix":
			cfg.Output.Prefix = *optPrefix
		case "compression":
			cfg.Output.Compression = *optCompression
		case "manifest":
			cfg.Output.Manifest = optManifest
		case "log-format":
			cfg.Log.Format = *optLogFormat
		case "log-level":
			cfg.Log.Level = *optLogLevel
		case "metrics-addr":
			cfg.Metrics.Address = *optMetricsAddr
		}
	})
}

func run() error {
	cfg, err := config.Load(*optConfig)
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.Setup(cfg.Log)
	logger.Info("datagen", "version", version)

	s, err := schema.Load(cfg.Schema)
	if err != nil {
		return fmt.Errorf("schema.Load: %w", err)
	}
	if err := s.Validate(); err != nil {
		return err
	}
	compression, err := shard.ParseCompression(cfg.Output.Compression)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sink, err := shard.NewSink(ctx, cfg.SinkConfig())
	if err != nil {
		return fmt.Errorf("shard.NewSink: %w", err)
	}
	defer sink.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg, "")
	if cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Address, reg); err != nil {
				logger.Error("metrics server failed", "err", err)
			}
		}()
	}

	runID := logging.NewRunID()
	from := time.Now()
	report, runErr := datagen.Run(ctx, datagen.Config{
		Threads:     cfg.Threads,
		Schema:      s,
		Sink:        sink,
		Prefix:      cfg.Output.Prefix,
		Compression: compression,
		Seed:        cfg.Seed,
		RunID:       runID,
		Metrics:     m,
		Logger:      logger,
	})

	var retErr error
	if runErr != nil {
		retErr = multierror.Append(retErr, runErr)
	}

	if report != nil && cfg.WriteManifest() {
		name := shard.ManifestName(cfg.Output.Prefix)
		// the run context may already be canceled by a signal
		if err := shard.WriteManifest(context.Background(), sink, name, newManifest(cfg, s, report, runErr)); err != nil {
			retErr = multierror.Append(retErr, fmt.Errorf("shard.WriteManifest: %w", err))
		} else {
			logger.Info("manifest written", "uri", sink.URI(name))
		}
	}

	if retErr != nil {
		return retErr
	}

	subs, pubs := report.Totals()
	logger.Info("total",
		"recs", humanize.Comma(subs+pubs),
		"shards", len(report.Workers),
		"dur", time.Since(from).String(),
		slog.String("run_id", runID))

	return nil
}

func newManifest(cfg config.Config, s *schema.Schema, report *datagen.Report, runErr error) *shard.Manifest {
	m := &shard.Manifest{
		RunID:         report.RunID,
		Status:        shard.StatusOK,
		Seed:          cfg.Seed,
		Threads:       cfg.Threads,
		Publications:  s.PublicationsCount,
		Subscriptions: s.SubscriptionsCount,
		CreatedAt:     time.Now().UTC(),
		ElapsedMillis: report.Elapsed.Milliseconds(),
	}
	if runErr != nil {
		m.Status = shard.StatusFailed
		m.Error = runErr.Error()
	}
	for _, st := range report.Workers {
		m.Shards = append(m.Shards, shard.ShardInfo{
			Worker:        st.Worker,
			Name:          st.Shard,
			URI:           st.URI,
			Tasks:         st.Tasks(),
			Publications:  st.Publications,
			Subscriptions: st.Subscriptions,
			Bytes:         st.Bytes,
		})
	}
	return m
}
