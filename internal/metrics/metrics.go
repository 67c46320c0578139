// Package metrics records passkey wallet events as Prometheus metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mahdiidarabi/passkey-wallet/pkg/passkeywallet"
)

const (
	// Namespace is the Prometheus namespace of every metric.
	Namespace = "passkey_wallet"

	LabelState      = "state"
	LabelNetwork    = "network"
	LabelGeneration = "generation"
	LabelResult     = "result"

	ResultMatched = "matched"
	ResultMissed  = "missed"
	ResultSuccess = "success"
	ResultError   = "error"
)

// Recorder implements passkeywallet.Observer.
type Recorder struct {
	transitions      *prometheus.CounterVec
	pages            *prometheus.CounterVec
	edges            *prometheus.CounterVec
	candidates       *prometheus.CounterVec
	recoveries       *prometheus.CounterVec
	recoveryDuration *prometheus.HistogramVec
	batches          *prometheus.CounterVec
	batchSize        prometheus.Histogram
}

// NewRecorder registers the metrics on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "state_transitions_total",
			Help:      "Number of recovery attempts entering each state",
		}, []string{LabelState}),
		pages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "registry",
			Name:      "pages_total",
			Help:      "Registry pages fetched by network",
		}, []string{LabelNetwork}),
		edges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "registry",
			Name:      "edges_total",
			Help:      "Registry events received by network",
		}, []string{LabelNetwork}),
		candidates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "candidates_total",
			Help:      "Derived candidate keys by generation and result",
		}, []string{LabelGeneration, LabelResult}),
		recoveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "recoveries_total",
			Help:      "Finished generation matches by generation and result",
		}, []string{LabelGeneration, LabelResult}),
		recoveryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "recovery_duration_seconds",
			Help:      "Duration of generation matches in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{LabelGeneration}),
		batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "batches_total",
			Help:      "Signed transaction batches by result",
		}, []string{LabelResult}),
		batchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "batch_size",
			Help:      "Number of transactions per signed batch",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
	}
}

var _ passkeywallet.Observer = (*Recorder)(nil)

func (r *Recorder) StateChanged(_, to passkeywallet.State) {
	r.transitions.WithLabelValues(string(to)).Inc()
}

func (r *Recorder) PageFetched(networkID string, edges int) {
	r.pages.WithLabelValues(networkID).Inc()
	r.edges.WithLabelValues(networkID).Add(float64(edges))
}

func (r *Recorder) CandidateTried(generation string, _ int, matched bool) {
	result := ResultMissed
	if matched {
		result = ResultMatched
	}
	r.candidates.WithLabelValues(generation, result).Inc()
}

func (r *Recorder) RecoveryFinished(generation string, err error, elapsed time.Duration) {
	r.recoveries.WithLabelValues(generation, status(err)).Inc()
	r.recoveryDuration.WithLabelValues(generation).Observe(elapsed.Seconds())
}

func (r *Recorder) BatchFinished(size int, err error) {
	r.batches.WithLabelValues(status(err)).Inc()
	r.batchSize.Observe(float64(size))
}

func status(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, passkeywallet.ErrNoRecoverablePublicKey):
		return ResultMissed
	default:
		return ResultError
	}
}
