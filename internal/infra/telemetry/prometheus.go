package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mcpbroker/internal/domain"
)

type PrometheusMetrics struct {
	catalogBuildDuration *prometheus.HistogramVec
	catalogTools         *prometheus.GaugeVec
	adaptations          *prometheus.CounterVec
	adaptedTools         *prometheus.GaugeVec
	responseFormats      *prometheus.CounterVec
	toolCallDuration     *prometheus.HistogramVec
	modelTokens          *prometheus.CounterVec
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		catalogBuildDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpbroker_catalog_build_duration_seconds",
				Help:    "Duration of tool catalog builds in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation", "status"},
		),
		catalogTools: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mcpbroker_catalog_tools",
				Help: "Number of tools returned by the last successful catalog build",
			},
			[]string{"operation"},
		),
		adaptations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpbroker_schema_adaptations_total",
				Help: "Total number of LLM schema adaptations",
			},
			[]string{"provider", "status"},
		),
		adaptedTools: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mcpbroker_adapted_tools",
				Help: "Number of function specs produced by the last adaptation",
			},
			[]string{"provider"},
		),
		responseFormats: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpbroker_tool_responses_formatted_total",
				Help: "Total number of tool responses normalized, by payload kind",
			},
			[]string{"kind", "status"},
		),
		toolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpbroker_tool_call_duration_seconds",
				Help:    "Duration of tool calls in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"namespace", "status"},
		),
		modelTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpbroker_model_tokens_total",
				Help: "Total number of tokens consumed by chat model calls",
			},
			[]string{"provider", "model"},
		),
	}
}

func (p *PrometheusMetrics) ObserveCatalogBuild(op string, duration time.Duration, tools int, err error) {
	p.catalogBuildDuration.WithLabelValues(op, string(domain.StatusFor(err))).Observe(duration.Seconds())
	if err == nil {
		p.catalogTools.WithLabelValues(op).Set(float64(tools))
	}
}

func (p *PrometheusMetrics) ObserveAdaptation(provider domain.Provider, tools int, err error) {
	label := string(provider)
	if label == "" {
		label = "default"
	}
	p.adaptations.WithLabelValues(label, string(domain.StatusFor(err))).Inc()
	if err == nil {
		p.adaptedTools.WithLabelValues(label).Set(float64(tools))
	}
}

func (p *PrometheusMetrics) ObserveResponseFormat(kind string, err error) {
	p.responseFormats.WithLabelValues(kind, string(domain.StatusFor(err))).Inc()
}

func (p *PrometheusMetrics) ObserveToolCall(namespace string, duration time.Duration, err error) {
	p.toolCallDuration.WithLabelValues(namespace, string(domain.StatusFor(err))).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveModelTokens(provider domain.Provider, model string, tokens int) {
	if tokens <= 0 {
		return
	}
	p.modelTokens.WithLabelValues(string(provider), model).Add(float64(tokens))
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
