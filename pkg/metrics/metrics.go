// Package metrics exports Prometheus telemetry for allocation, publishing and delivery.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "invite"

// Observer is the telemetry sink used by the services. A nil *Prometheus is a no-op.
type Observer interface {
	RecordAllocation(attempts int, err error)
	RecordPublish(mode string, duration time.Duration, err error)
	RecordDelivery(kind string, status int, duration time.Duration)
	SetIncomplete(n int)
}

type Prometheus struct {
	allocations     *prometheus.CounterVec
	allocAttempts   prometheus.Histogram
	publishes       *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec
	deliveries      *prometheus.CounterVec
	deliveryLatency *prometheus.HistogramVec
	incomplete      prometheus.Gauge
}

// NewPrometheus registers the collectors on reg (default registerer when nil).
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prometheus{
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "ID allocation requests by outcome.",
		}, []string{"outcome"}),
		allocAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "allocation_attempts",
			Help:      "Storage probes needed per allocation.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8},
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Relayed publishes by mode and outcome.",
		}, []string{"mode", "outcome"}),
		publishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Latency of relayed publishes.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "View requests by artifact kind and status code.",
		}, []string{"kind", "status"}),
		deliveryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Time to resolve and fetch an artifact.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		incomplete: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "incomplete_ids",
			Help:      "Invitation prefixes missing at least one artifact at the last audit.",
		}),
	}
	collectors := []prometheus.Collector{
		p.allocations, p.allocAttempts, p.publishes, p.publishDuration,
		p.deliveries, p.deliveryLatency, p.incomplete,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return nil, fmt.Errorf("register invite metric: %w", err)
		}
	}
	return p, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (p *Prometheus) RecordAllocation(attempts int, err error) {
	if p == nil {
		return
	}
	p.allocations.WithLabelValues(outcome(err)).Inc()
	p.allocAttempts.Observe(float64(attempts))
}

func (p *Prometheus) RecordPublish(mode string, duration time.Duration, err error) {
	if p == nil {
		return
	}
	p.publishes.WithLabelValues(mode, outcome(err)).Inc()
	p.publishDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

func (p *Prometheus) RecordDelivery(kind string, status int, duration time.Duration) {
	if p == nil {
		return
	}
	p.deliveries.WithLabelValues(kind, fmt.Sprintf("%d", status)).Inc()
	p.deliveryLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

func (p *Prometheus) SetIncomplete(n int) {
	if p == nil {
		return
	}
	p.incomplete.Set(float64(n))
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordAllocation(int, error)                {}
func (Nop) RecordPublish(string, time.Duration, error) {}
func (Nop) RecordDelivery(string, int, time.Duration)  {}
func (Nop) SetIncomplete(int)                          {}
