// Package monitoring provides Prometheus metrics for the HieraChain simulator.
package monitoring

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/VanDung-dev/HieraChain-Simulator/engine"
)

// Metrics holds all Prometheus metrics for the simulator. A nil *Metrics
// records nothing.
type Metrics struct {
	// Bridge request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Ledger metrics
	CheckpointHeight       prometheus.Gauge
	Epoch                  prometheus.Gauge
	NetworkTransactions    prometheus.Gauge
	CheckpointTransactions prometheus.Histogram

	// Frame server metrics
	FramesTotal       *prometheus.CounterVec
	WorkerPoolActive  prometheus.Gauge
	WorkerPoolPending prometheus.Gauge

	// Downstream sinks
	FeedPublished      prometheus.Counter
	FeedDropped        prometheus.Counter
	IngestedCheckpoint prometheus.Counter
}

var defaultMetrics = sync.OnceValue(func() *Metrics {
	return NewMetrics("hierachain_sim", prometheus.DefaultRegisterer)
})

// Default returns the process-wide metrics registered with the default
// Prometheus registry.
func Default() *Metrics { return defaultMetrics() }

// NewMetrics creates a new Metrics instance with the given namespace,
// registered with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_requests_total",
			Help:      "Total bridge requests by method and status",
		}, []string{"method", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bridge_request_duration_seconds",
			Help:      "Bridge request duration by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		CheckpointHeight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checkpoint_height",
			Help:      "Sequence number of the latest checkpoint",
		}),
		Epoch: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "epoch",
			Help:      "Epoch of the latest checkpoint",
		}),
		NetworkTransactions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "network_transactions",
			Help:      "Transactions certified by checkpoints so far",
		}),
		CheckpointTransactions: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_transactions",
			Help:      "Number of transactions per checkpoint",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),

		FramesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Framed RPC messages by outcome",
		}, []string{"status"}),
		WorkerPoolActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pool_active",
			Help:      "Number of active workers",
		}),
		WorkerPoolPending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pool_pending",
			Help:      "Number of pending tasks in worker pool",
		}),

		FeedPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_published_total",
			Help:      "Checkpoints published on the feed",
		}),
		FeedDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_dropped_total",
			Help:      "Checkpoints dropped because the feed queue was full",
		}),
		IngestedCheckpoint: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_checkpoints_total",
			Help:      "Checkpoints written to the ingestion store",
		}),
	}
}

// RecordRequest records one bridge request.
func (m *Metrics) RecordRequest(method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, status).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// OnCheckpoint updates the ledger gauges; Metrics is a checkpoint observer.
func (m *Metrics) OnCheckpoint(cp *engine.VerifiedCheckpoint, contents *engine.CheckpointContents) {
	if m == nil {
		return
	}
	m.CheckpointHeight.Set(float64(cp.Data.SequenceNumber))
	m.Epoch.Set(float64(cp.Data.Epoch))
	m.NetworkTransactions.Set(float64(cp.Data.NetworkTotalTransactions))
	m.CheckpointTransactions.Observe(float64(len(contents.Transactions)))
}

// RecordFrame records one framed RPC message.
func (m *Metrics) RecordFrame(status string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(status).Inc()
}

// UpdateWorkerPool updates worker pool gauges.
func (m *Metrics) UpdateWorkerPool(stats engine.PoolStats) {
	if m == nil {
		return
	}
	m.WorkerPoolActive.Set(float64(stats.Active))
	m.WorkerPoolPending.Set(float64(stats.Pending))
}

// RecordFeed records a feed publish attempt.
func (m *Metrics) RecordFeed(published bool) {
	if m == nil {
		return
	}
	if published {
		m.FeedPublished.Inc()
	} else {
		m.FeedDropped.Inc()
	}
}

// RecordIngest records a checkpoint written to the ingestion store.
func (m *Metrics) RecordIngest() {
	if m == nil {
		return
	}
	m.IngestedCheckpoint.Inc()
}

// MetricsServer runs an HTTP server exposing /metrics endpoint.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a metrics server on addr serving gatherer.
// A nil gatherer serves the default registry.
func NewMetricsServer(addr string, gatherer prometheus.Gatherer) *MetricsServer {
	handler := promhttp.Handler()
	if gatherer != nil {
		handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the router, mainly for tests.
func (s *MetricsServer) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the metrics server (blocking).
func (s *MetricsServer) Start() error {
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the metrics server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
