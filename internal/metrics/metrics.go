// Package metrics exposes Prometheus metrics for ingestion runs and the
// catalog API.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/JonMunkholm/cmingest/internal/core"
)

const namespace = "cmingest"

// Pipeline records ingestion outcomes. It implements core.Observer.
type Pipeline struct {
	ArtifactsTotal   *prometheus.CounterVec
	ArtifactDuration *prometheus.HistogramVec
	ChannelsTotal    *prometheus.CounterVec
	DatapointsTotal  *prometheus.CounterVec
	RowsTotal        *prometheus.CounterVec
}

var _ core.Observer = (*Pipeline)(nil)

// NewPipeline registers pipeline metrics with reg.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	f := promauto.With(reg)
	return &Pipeline{
		ArtifactsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_total",
			Help:      "Artifacts processed, by format and outcome status",
		}, []string{"format", "status"}),
		ArtifactDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_duration_seconds",
			Help:      "Time spent processing one artifact",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"format"}),
		ChannelsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_total",
			Help:      "Channels processed, by kind and final state",
		}, []string{"format", "kind", "state"}),
		DatapointsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datapoints_submitted_total",
			Help:      "Datapoints accepted by the catalog",
		}, []string{"format"}),
		RowsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequence_rows_submitted_total",
			Help:      "Sequence rows accepted by the catalog",
		}, []string{"format"}),
	}
}

func (p *Pipeline) ArtifactProcessed(format string, status core.Status, d time.Duration) {
	p.ArtifactsTotal.WithLabelValues(format, string(status)).Inc()
	p.ArtifactDuration.WithLabelValues(format).Observe(d.Seconds())
}

func (p *Pipeline) ChannelProcessed(format string, kind core.Kind, state core.ChannelState) {
	p.ChannelsTotal.WithLabelValues(format, kind.String(), string(state)).Inc()
}

func (p *Pipeline) DatapointsSubmitted(format string, n int) {
	p.DatapointsTotal.WithLabelValues(format).Add(float64(n))
}

func (p *Pipeline) RowsSubmitted(format string, n int) {
	p.RowsTotal.WithLabelValues(format).Add(float64(n))
}

// Push sends everything gathered by g to a Prometheus pushgateway.
func Push(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	if err := push.New(url, job).Gatherer(g).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

// HTTP records catalog API request metrics.
type HTTP struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
}

// NewHTTP registers HTTP metrics with reg.
func NewHTTP(reg prometheus.Registerer) *HTTP {
	f := promauto.With(reg)
	return &HTTP{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		RequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		}),
	}
}

// Middleware returns a chi middleware that records request metrics.
func (m *HTTP) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Route patterns keep label cardinality bounded.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		m.RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		m.RequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
