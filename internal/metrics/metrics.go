package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "queuehive"

// Push event outcomes.
const (
	PushApplied    = "applied"
	PushStale      = "stale"
	PushDuplicate  = "duplicate"
	PushHint       = "hint"
	PushIgnored    = "ignored"
	PushParseError = "parse_error"
)

// Metrics holds the client collectors. A nil *Metrics is valid and records
// nothing, so components may be built without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestErrors   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	pushEvents      *prometheus.CounterVec
	pollFailures    prometheus.Counter
	tracked         prometheus.Gauge
	degraded        prometheus.Gauge
	reconnects      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "REST requests by method and response status.",
		}, []string{"method", "status"}),
		requestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_request_errors_total",
			Help:      "Normalized REST errors by kind.",
		}, []string{"kind"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "REST request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		pushEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_events_total",
			Help:      "Push messages by reconciliation outcome.",
		}, []string{"outcome"}),
		pollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_failures_total",
			Help:      "Failed reconciliation fetches.",
		}),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_tokens",
			Help:      "Tokens currently tracked.",
		}),
		degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_degraded",
			Help:      "Tracked entities whose sync is degraded.",
		}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_reconnects_total",
			Help:      "Push channel reconnect attempts by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.requests,
		m.requestErrors,
		m.requestDuration,
		m.pushEvents,
		m.pollFailures,
		m.tracked,
		m.degraded,
		m.reconnects,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", addr).Msg("metrics listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (m *Metrics) ObserveRequest(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *Metrics) RequestError(kind string) {
	if m == nil {
		return
	}
	m.requestErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) PushEvent(outcome string) {
	if m == nil {
		return
	}
	m.pushEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PollFailure() {
	if m == nil {
		return
	}
	m.pollFailures.Inc()
}

func (m *Metrics) TrackedDelta(delta int) {
	if m == nil {
		return
	}
	m.tracked.Add(float64(delta))
}

func (m *Metrics) DegradedDelta(delta int) {
	if m == nil {
		return
	}
	m.degraded.Add(float64(delta))
}

func (m *Metrics) Reconnect(result string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(result).Inc()
}
