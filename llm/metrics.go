package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	providerHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "modelgrid_provider_healthy",
			Help: "Provider health status (1 healthy, 0 unhealthy).",
		},
		[]string{"provider_id"},
	)
	providerHealthCheckLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelgrid_provider_health_check_latency_ms",
			Help:    "Provider health check latency in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"provider_id"},
	)
	completionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgrid_completions_total",
			Help: "Completion calls by provider and outcome.",
		},
		[]string{"provider_id", "outcome"},
	)
	fallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgrid_completion_fallbacks_total",
			Help: "Fallback completion attempts by original provider and outcome.",
		},
		[]string{"original_provider", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		providerHealthy,
		providerHealthCheckLatencyMs,
		completionsTotal,
		fallbacksTotal,
	)
}

func observeProviderHealth(providerID string, healthy bool, latency time.Duration) {
	if providerID == "" {
		providerID = "unknown"
	}
	v := 0.0
	if healthy {
		v = 1.0
	}
	providerHealthy.WithLabelValues(providerID).Set(v)
	if latency > 0 {
		providerHealthCheckLatencyMs.WithLabelValues(providerID).Observe(float64(latency.Milliseconds()))
	}
}

func observeCompletion(providerID string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	completionsTotal.WithLabelValues(providerID, outcome).Inc()
}

func observeFallback(originalProvider string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	fallbacksTotal.WithLabelValues(originalProvider, outcome).Inc()
}
