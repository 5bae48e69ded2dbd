// Package metrics exports harvest round statistics in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"saleharvest/internal/harvest"
	"saleharvest/internal/item"
)

const namespace = "harvest"

// Recorder holds the harvest metrics on a private registry. It implements
// scheduler.Observer.
type Recorder struct {
	registry *prometheus.Registry

	Rounds           *prometheus.CounterVec
	Accepted         *prometheus.CounterVec
	Duplicates       *prometheus.CounterVec
	Skipped          *prometheus.CounterVec
	Defects          *prometheus.CounterVec
	FetchAttempts    prometheus.Counter
	SustainedFailure prometheus.Counter
	FailureStreak    prometheus.Gauge
	RoundDuration    prometheus.Histogram
}

// New creates a Recorder with every collector registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		Rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Finished harvest rounds by outcome",
		}, []string{"outcome"}),
		Accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_accepted_total",
			Help:      "Items persisted for the first time by kind",
		}, []string{"kind"}),
		Duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_duplicate_total",
			Help:      "Items dropped as already known by kind",
		}, []string{"kind"}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_skipped_total",
			Help:      "Malformed candidates skipped during extraction by kind",
		}, []string{"kind"}),
		Defects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_defects_total",
			Help:      "Enrichment defects by stage",
		}, []string{"stage"}),
		FetchAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Page fetch attempts including retries",
		}),
		SustainedFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sustained_failure_alerts_total",
			Help:      "Alerts raised for consecutive failed rounds",
		}),
		FailureStreak: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failed_rounds",
			Help:      "Current streak of failed rounds",
		}),
		RoundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_duration_seconds",
			Help:      "Wall time of a harvest round",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
	}
	reg.MustRegister(
		r.Rounds, r.Accepted, r.Duplicates, r.Skipped, r.Defects,
		r.FetchAttempts, r.SustainedFailure, r.FailureStreak, r.RoundDuration,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry for a /metrics endpoint.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveRound records one finished round.
func (r *Recorder) ObserveRound(s harvest.Summary) {
	r.Rounds.WithLabelValues(string(s.Outcome)).Inc()
	r.FetchAttempts.Add(float64(s.Attempts))
	r.RoundDuration.Observe(time.Duration(s.Duration).Seconds())

	r.Accepted.WithLabelValues(string(item.KindProduct)).Add(float64(s.AcceptedProducts))
	r.Accepted.WithLabelValues(string(item.KindBanner)).Add(float64(s.AcceptedBanners))
	r.Duplicates.WithLabelValues(string(item.KindProduct)).Add(float64(s.DuplicateProducts))
	r.Duplicates.WithLabelValues(string(item.KindBanner)).Add(float64(s.DuplicateBanners))
	for kind, n := range s.SkippedByKind {
		r.Skipped.WithLabelValues(string(kind)).Add(float64(n))
	}
	for stage, n := range s.DefectsByStage {
		r.Defects.WithLabelValues(string(stage)).Add(float64(n))
	}

	if s.Outcome != harvest.OutcomeFailed {
		r.FailureStreak.Set(0)
	} else {
		r.FailureStreak.Inc()
	}
}

// ObserveSustainedFailure records an alert for a streak of failed rounds.
func (r *Recorder) ObserveSustainedFailure(consecutive int) {
	r.SustainedFailure.Inc()
	r.FailureStreak.Set(float64(consecutive))
}
