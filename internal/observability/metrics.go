package observability

import (
	"time"

	"github.com/danmuck/paisync/internal/timesync"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the sync attempt series on a private registry so a
// one-shot run can dump them for the node_exporter textfile collector.
type Metrics struct {
	registry     *prometheus.Registry
	attempts     *prometheus.CounterVec
	replyLatency prometheus.Histogram
	lastSuccess  prometheus.Gauge
	now          func() time.Time
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "paisync",
				Subsystem: "sync_time",
				Name:      "attempts_total",
				Help:      "Panel time sync attempts by result.",
			},
			[]string{"result"},
		),
		replyLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "paisync",
				Subsystem: "sync_time",
				Name:      "reply_latency_seconds",
				Help:      "Time from SetTimeDate write to the matching reply.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "paisync",
				Subsystem: "sync_time",
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last accepted sync.",
			},
		),
		now: time.Now,
	}
	m.registry.MustRegister(m.attempts, m.replyLatency, m.lastSuccess)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordSync implements timesync.Recorder.
func (m *Metrics) RecordSync(result string, latency time.Duration) {
	m.attempts.WithLabelValues(result).Inc()
	if latency > 0 {
		m.replyLatency.Observe(latency.Seconds())
	}
	if result == timesync.ResultSuccess {
		m.lastSuccess.Set(float64(m.now().Unix()))
	}
}

// WriteTextfile atomically writes the registry in text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
