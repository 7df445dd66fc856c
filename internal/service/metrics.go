package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "apiodactyl"

// Metrics holds Prometheus metrics for API key validation. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	validations  *prometheus.CounterVec
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	storeLookups prometheus.Counter
	lastUsed     *prometheus.CounterVec

	registerer prometheus.Registerer
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{registerer: reg}

	m.validations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "apikey",
			Name:      "validations_total",
			Help:      "API key validations by result (valid, invalid, error).",
		},
		[]string{"result"},
	)
	m.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "apikey",
		Name:      "cache_hits_total",
		Help:      "API key lookups answered from the cache.",
	})
	m.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "apikey",
		Name:      "cache_misses_total",
		Help:      "API key lookups not answered from the cache.",
	})
	m.storeLookups = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "apikey",
		Name:      "store_lookups_total",
		Help:      "API key lookups that reached the key store.",
	})
	m.lastUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "apikey",
			Name:      "last_used_updates_total",
			Help:      "Last-used timestamp updates by outcome (submitted, dropped, updated, failed).",
		},
		[]string{"outcome"},
	)

	// Pre-create label combinations so they appear in /metrics at startup.
	for _, r := range []string{"valid", "invalid", "error"} {
		m.validations.WithLabelValues(r)
	}
	for _, o := range []string{"submitted", "dropped", "updated", "failed"} {
		m.lastUsed.WithLabelValues(o)
	}

	if reg != nil {
		reg.MustRegister(m.validations, m.cacheHits, m.cacheMisses, m.storeLookups, m.lastUsed)
	}
	return m
}

// trackCacheSize exposes the number of cached entries as a gauge.
func (m *Metrics) trackCacheSize(size func() int) {
	if m == nil || m.registerer == nil {
		return
	}
	m.registerer.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "apikey",
			Name:      "cache_entries",
			Help:      "Entries currently held in the API key cache, including expired ones not yet swept.",
		},
		func() float64 { return float64(size()) },
	))
}

func (m *Metrics) validation(result string) {
	if m != nil {
		m.validations.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) cacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) cacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

func (m *Metrics) storeLookup() {
	if m != nil {
		m.storeLookups.Inc()
	}
}

func (m *Metrics) lastUsedOutcome(outcome string) {
	if m != nil {
		m.lastUsed.WithLabelValues(outcome).Inc()
	}
}
