// Package metrics exposes Prometheus counters for the ingest pipeline.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "tflogs"
	subsystem = "ingest"

	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

var ErrServe = errors.New("failed to serve metrics")

// Collector holds the pipeline metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	matchesProcessed prometheus.Counter
	matchesKept      prometheus.Counter
	matchesDropped   prometheus.Counter
	fetchFailures    prometheus.Counter
	decodeFailures   prometheus.Counter
	checkpoints      prometheus.Counter
	rows             prometheus.Gauge
	fetchDuration    prometheus.Histogram
}

// New registers the pipeline metrics on the given registerer.
func New(registry prometheus.Registerer) *Collector {
	auto := promauto.With(registry)

	return &Collector{
		matchesProcessed: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "matches_processed_total",
			Help:      "Matches counted by the pipeline, kept or not",
		}),
		matchesKept: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "matches_kept_total",
			Help:      "Matches whose rows were added to the table",
		}),
		matchesDropped: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "matches_dropped_total",
			Help:      "Matches discarded for having the wrong number of players",
		}),
		fetchFailures: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fetch_failures_total",
			Help:      "Match documents that could not be fetched",
		}),
		decodeFailures: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "decode_failures_total",
			Help:      "Match documents that could not be decoded",
		}),
		checkpoints: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "checkpoints_total",
			Help:      "Checkpoint files written",
		}),
		rows: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rows",
			Help:      "Rows currently held in the table",
		}),
		fetchDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fetch_duration_seconds",
			Help:      "Time taken to fetch a match document",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (c *Collector) MatchProcessed() {
	if c != nil {
		c.matchesProcessed.Inc()
	}
}

func (c *Collector) MatchKept(rows int) {
	if c != nil {
		c.matchesKept.Inc()
		c.rows.Set(float64(rows))
	}
}

// SetRows reports the current table size, eg: after restoring a resumed run.
func (c *Collector) SetRows(rows int) {
	if c != nil {
		c.rows.Set(float64(rows))
	}
}

func (c *Collector) MatchDropped() {
	if c != nil {
		c.matchesDropped.Inc()
	}
}

func (c *Collector) FetchFailed() {
	if c != nil {
		c.fetchFailures.Inc()
	}
}

func (c *Collector) DecodeFailed() {
	if c != nil {
		c.decodeFailures.Inc()
	}
}

func (c *Collector) Checkpoint() {
	if c != nil {
		c.checkpoints.Inc()
	}
}

// ObserveFetch records how long a fetch started at start took.
func (c *Collector) ObserveFetch(start time.Time) {
	if c != nil {
		c.fetchDuration.Observe(time.Since(start).Seconds())
	}
}

// Serve exposes the gatherer on /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errChan := make(chan error, 1)

	go func() {
		slog.Info("Starting metrics server", slog.String("addr", addr))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- errors.Join(err, ErrServe)
		}

		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Join(err, ErrServe)
	}

	return nil
}
