package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors groups the application's Prometheus metrics.
type Collectors struct {
	Generations        *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	Feedback           *prometheus.CounterVec
	StoredRecords      prometheus.Gauge
	registry           *prometheus.Registry
}

// New creates collectors registered on a fresh registry.
func New() *Collectors {
	c := &Collectors{
		Generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatbot_generations_total",
				Help: "Answers generated, by model and outcome",
			},
			[]string{"model", "status"},
		),
		GenerationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatbot_generation_duration_seconds",
				Help:    "Wall-clock generation latency of successful answers",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"model"},
		),
		Feedback: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatbot_feedback_total",
				Help: "Feedback submissions, by model and label",
			},
			[]string{"model", "label"},
		),
		StoredRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatbot_stored_interactions",
			Help: "Interaction records currently stored",
		}),
		registry: prometheus.NewRegistry(),
	}
	c.registry.MustRegister(c.Generations, c.GenerationDuration, c.Feedback, c.StoredRecords)
	return c
}

// ObserveGeneration records one generation outcome.
func (c *Collectors) ObserveGeneration(model string, elapsed time.Duration, failed bool) {
	if failed {
		c.Generations.WithLabelValues(model, "error").Inc()
		return
	}
	c.Generations.WithLabelValues(model, "ok").Inc()
	c.GenerationDuration.WithLabelValues(model).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
