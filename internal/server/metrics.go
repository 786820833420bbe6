package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry          *prometheus.Registry
	questions         *prometheus.CounterVec
	ingests           *prometheus.CounterVec
	expansionFallback prometheus.Counter
	variantFailures   prometheus.Counter
	answerDuration    prometheus.Histogram
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		questions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kotae_questions_total",
			Help: "Questions answered, by outcome (ok or the error kind).",
		}, []string{"outcome"}),
		ingests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kotae_ingest_total",
			Help: "Ingest calls, by outcome (created, ignored or the error kind).",
		}, []string{"outcome"}),
		expansionFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kotae_expansion_fallbacks_total",
			Help: "Questions searched without alternative phrasings because expansion failed.",
		}),
		variantFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kotae_variant_search_failures_total",
			Help: "Query variant searches that failed.",
		}),
		answerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kotae_answer_duration_seconds",
			Help:    "Time to answer a question, including expansion, retrieval and generation.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
	m.registry.MustRegister(m.questions, m.ingests, m.expansionFallback, m.variantFailures, m.answerDuration)
	return m
}

// ExpansionFallback counts one expansion fallback.
func (m *Metrics) ExpansionFallback() { m.expansionFallback.Inc() }

// VariantSearchFailed counts one failed variant search.
func (m *Metrics) VariantSearchFailed() { m.variantFailures.Inc() }

func (m *Metrics) observeQuestion(outcome string, seconds float64) {
	m.questions.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.answerDuration.Observe(seconds)
	}
}

func (m *Metrics) observeIngest(outcome string) {
	m.ingests.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
