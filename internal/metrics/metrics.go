// Package metrics exposes the engine's Prometheus instruments on a private
// registry. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "signal_engine"

// Recorder holds every instrument
type Recorder struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	bundleCache   *prometheus.CounterVec
	fetchErrors   *prometheus.CounterVec
	proposals     *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	weights       *prometheus.GaugeVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates a recorder with its own registry, including Go runtime and
// process collectors
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Signal requests by result, failing layer and failure kind",
			},
			[]string{"result", "layer", "kind"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"stage"},
		),
		bundleCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bundle_cache_total",
				Help:      "Indicator bundle cache lookups by result",
			},
			[]string{"result"},
		),
		fetchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_errors_total",
				Help:      "Market data fetch failures by timeframe",
			},
			[]string{"timeframe"},
		),
		proposals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proposals_total",
				Help:      "Emitted trade proposals by direction",
			},
			[]string{"direction"},
		),
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outcomes_total",
				Help:      "Recorded outcomes by result",
			},
			[]string{"result"},
		),
		weights: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "analyzer_weight",
				Help:      "Current Layer-1 weight per analyzer",
			},
			[]string{"analyzer"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordRequest counts a finished signal request. Successful requests carry
// empty layer and kind labels.
func (r *Recorder) RecordRequest(success bool, layer, kind string) {
	if r == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	r.requests.WithLabelValues(result, layer, kind).Inc()
}

// ObserveStage records how long a pipeline stage took
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordCache counts a bundle cache lookup
func (r *Recorder) RecordCache(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.bundleCache.WithLabelValues(result).Inc()
}

// RecordFetchError counts a failed fetch
func (r *Recorder) RecordFetchError(timeframe string) {
	if r == nil {
		return
	}
	r.fetchErrors.WithLabelValues(timeframe).Inc()
}

// RecordProposal counts an emitted proposal
func (r *Recorder) RecordProposal(direction string) {
	if r == nil {
		return
	}
	r.proposals.WithLabelValues(direction).Inc()
}

// RecordOutcome counts an applied outcome
func (r *Recorder) RecordOutcome(result string) {
	if r == nil {
		return
	}
	r.outcomes.WithLabelValues(result).Inc()
}

// SetWeights publishes the current weight vector
func (r *Recorder) SetWeights(weights map[string]float64) {
	if r == nil {
		return
	}
	for analyzer, w := range weights {
		r.weights.WithLabelValues(analyzer).Set(w)
	}
}

// RecordHTTP records one served HTTP request
func (r *Recorder) RecordHTTP(route, method string, status int, d time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, method, statusClass(status)).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
