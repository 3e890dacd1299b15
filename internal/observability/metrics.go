// Package observability exposes operational metrics over prometheus and
// tracks the pick-to-export latency distribution.
package observability

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seistack/pickwave/internal/logging"
)

// Metrics holds the pickwave metric set on its own registry, so tests can
// instantiate it repeatedly without collisions.
type Metrics struct {
	registry *prometheus.Registry

	PicksReceived    prometheus.Counter
	PicksBlacklisted prometheus.Counter
	PicksUnknown     prometheus.Counter

	SegmentsIngested prometheus.Counter
	TicksBuffered    prometheus.Gauge
	TicksEvicted     prometheus.Counter

	RequestsPending  prometheus.Gauge
	RequestsComplete prometheus.Counter
	RequestsExpired  prometheus.Counter

	ArchiveFetches    prometheus.Counter
	ArchiveFetchFails prometheus.Counter
	ExportFails       prometheus.Counter

	ExportLatency prometheus.Histogram

	// latency keeps the full pick-to-export latency distribution for
	// exact quantiles in status output, which histogram buckets cannot
	// give.
	mu      sync.Mutex
	latency *ddsketch.DDSketch

	log *slog.Logger
}

// New creates the metric set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	sketch, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		// Only reachable with an invalid relative accuracy constant.
		panic(err)
	}

	return &Metrics{
		registry: reg,

		PicksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "pickwave_picks_received_total",
			Help: "Pick notifications received from the feed.",
		}),
		PicksBlacklisted: factory.NewCounter(prometheus.CounterOpts{
			Name: "pickwave_picks_blacklisted_total",
			Help: "Picks skipped because their station is blacklisted.",
		}),
		PicksUnknown: factory.NewCounter(prometheus.CounterOpts{
			Name: "pickwave_picks_unknown_stream_total",
			Help: "Picks skipped because their stream is not configured.",
		}),

		SegmentsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "pickwave_segments_ingested_total",
			Help: "Waveform segments accepted into the buffer.",
		}),
		TicksBuffered: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pickwave_buffered_ticks",
			Help: "Microseconds of waveform data currently buffered.",
		}),
		TicksEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "pickwave_evicted_ticks_total",
			Help: "Microseconds of waveform data evicted by retention.",
		}),

		RequestsPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pickwave_requests_pending",
			Help: "Requests currently waiting or partial.",
		}),
		RequestsComplete: factory.NewCounter(prometheus.CounterOpts{
			Name: "pickwave_requests_complete_total",
			Help: "Requests completed and exported.",
		}),
		RequestsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "pickwave_requests_expired_total",
			Help: "Requests expired before completion.",
		}),

		ArchiveFetches: factory.NewCounter(prometheus.CounterOpts{
			Name: "pickwave_archive_fetches_total",
			Help: "Archive backfill fetches launched.",
		}),
		ArchiveFetchFails: factory.NewCounter(prometheus.CounterOpts{
			Name: "pickwave_archive_fetch_failures_total",
			Help: "Archive fetches that returned an error.",
		}),
		ExportFails: factory.NewCounter(prometheus.CounterOpts{
			Name: "pickwave_export_failures_total",
			Help: "Exports that returned an error.",
		}),

		ExportLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pickwave_export_latency_seconds",
			Help:    "Latency from pick time to export.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),

		latency: sketch,
		log:     logging.Component("observability"),
	}
}

// ObserveExportLatency records one pick-to-export latency.
func (m *Metrics) ObserveExportLatency(d time.Duration) {
	m.ExportLatency.Observe(d.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.latency.Add(d.Seconds()); err != nil {
		m.log.Warn("latency sketch rejected value", "seconds", d.Seconds(), "error", err)
	}
}

// LatencyQuantiles returns the p50/p90/p99 of pick-to-export latency in
// seconds. Zeroes until the first export.
func (m *Metrics) LatencyQuantiles() (p50, p90, p99 float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs, err := m.latency.GetValuesAtQuantiles([]float64{0.5, 0.9, 0.99})
	if err != nil {
		return 0, 0, 0
	}
	return qs[0], qs[1], qs[2]
}

// Handler returns the /metrics HTTP handler for this metric set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs a metrics listener on addr until ctx is done. An empty addr
// disables the listener.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	m.log.Info("metrics listener started", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errc:
		return err
	}
}
