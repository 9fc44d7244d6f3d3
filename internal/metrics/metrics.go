package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trafficlens/internal/pipeline"
)

const namespace = "trafficlens"

// Metrics owns the collectors exported on /metrics. Each instance uses its
// own registry so tests and multiple servers never collide.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal         *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	FramesSampled     prometheus.Counter
	RunErrors     *prometheus.CounterVec
	ActiveRuns        prometheus.Gauge
	HTTPRequestsTotal *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of pipeline runs, by outcome",
		}, []string{"outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		FramesSampled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sampled_total",
			Help:      "Total number of frames sent for analysis",
		}),
		RunErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_errors_total",
			Help:      "Failed runs, by error kind",
		}, []string{"kind"}),
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Number of pipeline runs in progress",
		}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status code",
		}, []string{"route", "code"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observer records run lifecycle events.
func (m *Metrics) Observer() pipeline.Observer {
	return observer{m: m}
}

type observer struct {
	m *Metrics
}

func (o observer) RunStarted(context.Context, pipeline.Snapshot) {
	o.m.ActiveRuns.Inc()
}

func (o observer) StageCompleted(_ context.Context, snap pipeline.Snapshot, st pipeline.Stage, elapsed time.Duration) {
	o.m.StageDuration.WithLabelValues(st.String()).Observe(elapsed.Seconds())
	if st == pipeline.StageExtraction {
		o.m.FramesSampled.Add(float64(snap.FrameCount))
	}
}

func (o observer) RunFinished(_ context.Context, snap pipeline.Snapshot) {
	o.m.ActiveRuns.Dec()
	o.m.RunsTotal.WithLabelValues(string(snap.State)).Inc()
	if snap.State == pipeline.StateFailed {
		kind := snap.ErrorKind
		if kind == "" {
			kind = "unknown"
		}
		o.m.RunErrors.WithLabelValues(kind).Inc()
	}
}
