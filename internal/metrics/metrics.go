// Package metrics provides Prometheus metrics for data generation runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tckz/go-datagen/internal/logging"
	"github.com/tckz/go-datagen/internal/task"
)

// Error types reported by WorkerFailed.
const (
	ErrorSchema  = "schema"
	ErrorIO      = "io"
	ErrorAborted = "aborted"
	ErrorOther   = "other"
)

// Metrics holds the generation metrics of one registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RecordsGenerated *prometheus.CounterVec
	WorkerErrors     *prometheus.CounterVec
	ShardBytes       prometheus.Counter
	WorkersRunning   prometheus.Gauge
	RunDuration      prometheus.Gauge

	subscriptions prometheus.Counter
	publications  prometheus.Counter
}

// Config holds metrics configuration.
type Config struct {
	Address string `yaml:"address"` // Address for metrics HTTP server (e.g., ":9090"), empty disables it
}

// New registers the generation metrics on reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "datagen"
	}
	f := promauto.With(reg)

	m := &Metrics{
		RecordsGenerated: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_generated_total",
				Help:      "Total number of records written to shards",
			},
			[]string{"kind"},
		),
		WorkerErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_errors_total",
				Help:      "Total number of workers stopped by a fatal error",
			},
			[]string{"type"},
		),
		ShardBytes: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shard_bytes_total",
				Help:      "Uncompressed bytes written to shards",
			},
		),
		WorkersRunning: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workers_running",
				Help:      "Number of workers still claiming tasks",
			},
		),
		RunDuration: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of the last finished run",
			},
		),
	}
	m.subscriptions = m.RecordsGenerated.WithLabelValues(task.Subscription.String())
	m.publications = m.RecordsGenerated.WithLabelValues(task.Publication.String())
	return m
}

// RecordGenerated counts one record of kind k.
func (m *Metrics) RecordGenerated(k task.Kind) {
	if m == nil {
		return
	}
	switch k {
	case task.Subscription:
		m.subscriptions.Inc()
	case task.Publication:
		m.publications.Inc()
	}
}

// WorkerStarted marks a worker as running.
func (m *Metrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.WorkersRunning.Inc()
}

// WorkerStopped marks a worker as stopped after writing bytes.
func (m *Metrics) WorkerStopped(bytes int64) {
	if m == nil {
		return
	}
	m.WorkersRunning.Dec()
	m.ShardBytes.Add(float64(bytes))
}

// WorkerFailed counts a worker stopped by an error of errType.
func (m *Metrics) WorkerFailed(errType string) {
	if m == nil {
		return
	}
	m.WorkerErrors.WithLabelValues(errType).Inc()
}

// RunFinished records the run wall time.
func (m *Metrics) RunFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.Set(d.Seconds())
}

// Serve exposes g on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logging.Component("metrics").Info("server listening", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
