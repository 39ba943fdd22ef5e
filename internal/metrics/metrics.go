package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline counters on a dedicated registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	llmCalls          *prometheus.CounterVec
	budgetSkips       prometheus.Counter
	projectsProcessed *prometheus.CounterVec
	evidenceItems     *prometheus.CounterVec
}

// New registers the counters.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "infratracker_llm_calls_total",
			Help: "LLM backend calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		budgetSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "infratracker_budget_skips_total",
			Help: "Calls served offline because the LLM budget refused them.",
		}),
		projectsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "infratracker_projects_processed_total",
			Help: "Projects processed by the worker pool, by resulting RAG status.",
		}, []string{"status"}),
		evidenceItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "infratracker_evidence_items_total",
			Help: "Evidence items gathered, by origin.",
		}, []string{"origin"}),
	}
	m.registry.MustRegister(m.llmCalls, m.budgetSkips, m.projectsProcessed, m.evidenceItems)
	return m
}

// LLMCall records one backend call.
func (m *Metrics) LLMCall(provider, outcome string) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(provider, outcome).Inc()
	if outcome == "mock" {
		m.budgetSkips.Inc()
	}
}

// ProjectProcessed records a finished project.
func (m *Metrics) ProjectProcessed(status string) {
	if m == nil {
		return
	}
	m.projectsProcessed.WithLabelValues(status).Inc()
}

// EvidenceGathered records n evidence items from origin.
func (m *Metrics) EvidenceGathered(origin string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evidenceItems.WithLabelValues(origin).Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
