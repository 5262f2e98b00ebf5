package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	buildDuration *prom.HistogramVec
	buildOutcome  *prom.CounterVec
	watchEvents   *prom.CounterVec
	rerunsQueued  *prom.CounterVec
	inFlight      prom.Gauge
}

// NewPrometheusRecorder constructs and registers the mdkit metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		buildDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "mdkit",
			Name:      "build_duration_seconds",
			Help:      "Duration of per-package build attempts",
			Buckets:   prom.DefBuckets,
		}, []string{"package"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "mdkit",
			Name:      "build_outcomes_total",
			Help:      "Build attempt outcomes per package",
		}, []string{"package", "outcome"}),
		watchEvents: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "mdkit",
			Name:      "watch_events_total",
			Help:      "Filesystem events observed, by operation",
		}, []string{"op"}),
		rerunsQueued: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "mdkit",
			Name:      "reruns_queued_total",
			Help:      "Follow-up builds queued while a package was already building",
		}, []string{"package"}),
		inFlight: prom.NewGauge(prom.GaugeOpts{
			Namespace: "mdkit",
			Name:      "builds_in_flight",
			Help:      "Number of builds currently executing",
		}),
	}
	reg.MustRegister(pr.buildDuration, pr.buildOutcome, pr.watchEvents, pr.rerunsQueued, pr.inFlight)
	return pr
}

func (p *PrometheusRecorder) ObserveBuildDuration(pkg string, d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.WithLabelValues(pkg).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(pkg string, outcome OutcomeLabel) {
	if p == nil {
		return
	}
	p.buildOutcome.WithLabelValues(pkg, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncWatchEvent(op string) {
	if p == nil {
		return
	}
	p.watchEvents.WithLabelValues(op).Inc()
}

func (p *PrometheusRecorder) IncRerunQueued(pkg string) {
	if p == nil {
		return
	}
	p.rerunsQueued.WithLabelValues(pkg).Inc()
}

func (p *PrometheusRecorder) SetInFlight(n int) {
	if p == nil {
		return
	}
	p.inFlight.Set(float64(n))
}
