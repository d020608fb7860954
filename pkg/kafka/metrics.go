package kafka

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	producerMsgsTotal     *prometheus.CounterVec
	producerBytesTotal    *prometheus.CounterVec
	producerLatency       *prometheus.HistogramVec
	consumerHandled       *prometheus.CounterVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerQueueDepth    *prometheus.GaugeVec
	consumerDropped       *prometheus.CounterVec

	metricsOnce sync.Once
	registerer  prometheus.Registerer = prometheus.DefaultRegisterer
)

// SetMetricsRegisterer overrides where Kafka metrics are registered. Call before
// the first producer or consumer is created.
func SetMetricsRegisterer(reg prometheus.Registerer) { registerer = reg }

func initMetrics() {
	metricsOnce.Do(func() {
		f := promauto.With(registerer)
		producerMsgsTotal = f.NewCounterVec(
			prometheus.CounterOpts{Name: "patternscope_kafka_producer_messages_total", Help: "Messages published to Kafka"},
			[]string{"topic", "result"},
		)
		producerBytesTotal = f.NewCounterVec(
			prometheus.CounterOpts{Name: "patternscope_kafka_producer_bytes_total", Help: "Payload bytes published"},
			[]string{"topic"},
		)
		producerLatency = f.NewHistogramVec(
			prometheus.HistogramOpts{Name: "patternscope_kafka_producer_publish_seconds", Help: "Publish latency", Buckets: prometheus.DefBuckets},
			[]string{"topic"},
		)
		consumerHandled = f.NewCounterVec(
			prometheus.CounterOpts{Name: "patternscope_kafka_consumer_messages_total", Help: "Messages handled by result"},
			[]string{"topic", "result"},
		)
		consumerHandleLatency = f.NewHistogramVec(
			prometheus.HistogramOpts{Name: "patternscope_kafka_consumer_handle_seconds", Help: "Handling time per message", Buckets: []float64{.05, .1, .5, 1, 2.5, 5, 10, 30, 60}},
			[]string{"topic"},
		)
		consumerQueueDepth = f.NewGaugeVec(
			prometheus.GaugeOpts{Name: "patternscope_kafka_consumer_queue_depth", Help: "Messages waiting for a worker"},
			[]string{"topic"},
		)
		consumerDropped = f.NewCounterVec(
			prometheus.CounterOpts{Name: "patternscope_kafka_consumer_dropped_total", Help: "Failed messages skipped without a DLQ"},
			[]string{"topic"},
		)
	})
}
