package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	EndpointLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "patternscope",
			Subsystem: "analysis",
			Name:      "latency_seconds",
			Help:      "Latency of analysis endpoints",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"endpoint"},
	)

	EndpointErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patternscope",
			Subsystem: "analysis",
			Name:      "errors_total",
			Help:      "Errors by analysis endpoint",
		},
		[]string{"endpoint"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(EndpointLatency, EndpointErrors)
	})
}

// Observe records the latency of endpoint since start, and an error when failed.
func Observe(endpoint string, start time.Time, failed bool) {
	EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if failed {
		EndpointErrors.WithLabelValues(endpoint).Inc()
	}
}
