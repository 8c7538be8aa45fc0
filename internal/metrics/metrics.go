// Package metrics defines hooky's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Capture outcomes.
const (
	OutcomeCaptured    = "captured"
	OutcomeNotFound    = "not_found"
	OutcomeUnsupported = "unsupported_media_type"
	OutcomeTooLarge    = "payload_too_large"
	OutcomeError       = "error"
)

var (
	Captures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hooky",
		Name:      "captures_total",
		Help:      "Inbound capture calls by outcome",
	}, []string{"outcome"})

	CaptureBodyBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hooky",
		Name:      "capture_body_bytes",
		Help:      "Size of accepted capture bodies",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
	})

	BroadcastDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hooky",
		Name:      "broadcast_dropped_total",
		Help:      "Real-time events dropped because a subscriber was not keeping up",
	})

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hooky",
		Name:      "subscribers",
		Help:      "Connected real-time subscribers",
	})

	SweepDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hooky",
		Name:      "sweep_deleted_total",
		Help:      "Captured requests soft-deleted by the retention sweep",
	})

	SweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hooky",
		Name:      "sweep_failures_total",
		Help:      "Retention sweep runs that returned an error",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
