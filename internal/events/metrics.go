package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts pipeline outcomes.
type Metrics struct {
	inserted   prometheus.Counter
	dropped    prometheus.Counter
	failed     *prometheus.CounterVec
	queueDepth prometheus.Gauge
}

// Failure stages used as the "stage" label.
const (
	stageSerialize = "serialize"
	stageDeliver   = "deliver"
	stagePanic     = "panic"
	stageClosed    = "closed"
)

// NewMetrics registers the pipeline metrics with reg. A nil reg creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		inserted: f.NewCounter(prometheus.CounterOpts{
			Name: "device_events_inserted_total",
			Help: "Events written to the event sink",
		}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "device_events_sink_absent_total",
			Help: "Events dropped because the event sink was not available",
		}),
		failed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "device_events_failed_total",
			Help: "Events that failed, by stage",
		}, []string{"stage"}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "device_events_queue_depth",
			Help: "Fire-and-forget submissions waiting for the background worker",
		}),
	}
}
