// Package metrics exposes the Prometheus instruments of the service.
//
// Every method is safe on a nil *Metrics so components can be built
// without instrumentation in tests and tools.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the counters and histograms of the service.
type Metrics struct {
	PayloadOps            *prometheus.CounterVec
	Transitions           *prometheus.CounterVec
	FiscalLookupDuration  *prometheus.HistogramVec
	FiscalCache           *prometheus.CounterVec
	CorpusSize            prometheus.Histogram
	CorpusDecodeFailures  prometheus.Counter
	DuplicatesFound       prometheus.Counter
	MailsSent             *prometheus.CounterVec
	PreconditionConflicts prometheus.Counter
}

// New registers all instruments on reg, the registry /metrics serves.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PayloadOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bourses_payload_operations_total",
			Help: "Payload encode/decode operations by outcome",
		}, []string{"op", "result"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bourses_lifecycle_transitions_total",
			Help: "Applied lifecycle status transitions",
		}, []string{"from", "to"}),
		FiscalLookupDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bourses_fiscal_lookup_duration_seconds",
			Help:    "Duration of tax-authority lookups",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"result"}),
		FiscalCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bourses_fiscal_cache_total",
			Help: "Fiscal lookup cache hits and misses",
		}, []string{"result"}),
		CorpusSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bourses_duplicates_corpus_size",
			Help:    "Number of applications scanned per duplicate resolution",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		CorpusDecodeFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "bourses_duplicates_corpus_decode_failures_total",
			Help: "Corpus applications excluded from duplicate matching because they failed to decode",
		}),
		DuplicatesFound: f.NewCounter(prometheus.CounterOpts{
			Name: "bourses_duplicates_found_total",
			Help: "Target applications reported with at least one duplicate",
		}),
		MailsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bourses_mails_sent_total",
			Help: "Notification e-mails by kind and outcome",
		}, []string{"kind", "result"}),
		PreconditionConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "bourses_precondition_conflicts_total",
			Help: "Conditional updates rejected because the application changed concurrently",
		}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObservePayload records one codec operation ("encode" or "decode").
func (m *Metrics) ObservePayload(op string, err error) {
	if m == nil {
		return
	}
	m.PayloadOps.WithLabelValues(op, result(err)).Inc()
}

// IncrementTransition records an applied status change.
func (m *Metrics) IncrementTransition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

// ObserveFiscalLookup records the duration of a lookup started at start.
func (m *Metrics) ObserveFiscalLookup(start time.Time, err error) {
	if m == nil {
		return
	}
	m.FiscalLookupDuration.WithLabelValues(result(err)).Observe(time.Since(start).Seconds())
}

// IncrementFiscalCache records a cache "hit" or "miss".
func (m *Metrics) IncrementFiscalCache(outcome string) {
	if m == nil {
		return
	}
	m.FiscalCache.WithLabelValues(outcome).Inc()
}

// ObserveCorpus records the size of a resolver corpus and its decode failures.
func (m *Metrics) ObserveCorpus(size, failures int) {
	if m == nil {
		return
	}
	m.CorpusSize.Observe(float64(size))
	m.CorpusDecodeFailures.Add(float64(failures))
}

// AddDuplicatesFound records targets reported with duplicates.
func (m *Metrics) AddDuplicatesFound(n int) {
	if m == nil || n == 0 {
		return
	}
	m.DuplicatesFound.Add(float64(n))
}

// ObserveMail records one notification delivery attempt.
func (m *Metrics) ObserveMail(kind string, err error) {
	if m == nil {
		return
	}
	m.MailsSent.WithLabelValues(kind, result(err)).Inc()
}

// IncrementPreconditionConflict records a rejected conditional update.
func (m *Metrics) IncrementPreconditionConflict() {
	if m == nil {
		return
	}
	m.PreconditionConflicts.Inc()
}
