// Package metrics holds the Prometheus collectors describing a collection run:
// dashboard requests by kind and outcome, request latency, retries, services
// skipped after retries ran out and the days left on the dashboard certificate.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "siteuptime"

// Request kinds.
const (
	KindLogin    = "login"
	KindListing  = "listing"
	KindFailures = "failures"
	KindWebhook  = "webhook"
)

const (
	// OutcomeSuccess labels requests that returned a usable page.
	OutcomeSuccess = "success"
	// OutcomeError labels requests that failed (network, status or parse).
	OutcomeError = "error"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of dashboard requests, partitioned by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	requestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_seconds",
			Help:      "Dashboard request latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
		},
		[]string{"kind"},
	)

	retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of retried requests, partitioned by kind.",
		},
		[]string{"kind"},
	)

	servicesSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "services_skipped_total",
			Help:      "Services left out of a report because their failure page could not be fetched.",
		},
	)

	certDaysLeft = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "site_certificate_days_left",
			Help:      "Whole days until the dashboard TLS certificate expires, as of the last check.",
		},
	)
)

// Register attaches the run collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		requestsTotal,
		requestSeconds,
		retriesTotal,
		servicesSkippedTotal,
		certDaysLeft,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRequest records one request attempt of the given kind.
func ObserveRequest(kind string, duration time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	requestsTotal.WithLabelValues(kind, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	requestSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// IncRetry counts one retry of a request of the given kind.
func IncRetry(kind string) {
	retriesTotal.WithLabelValues(kind).Inc()
}

// IncSkipped counts one service dropped from a run.
func IncSkipped() {
	servicesSkippedTotal.Inc()
}

// SetCertDaysLeft records the remaining lifetime of the dashboard certificate.
func SetCertDaysLeft(days int) {
	certDaysLeft.Set(float64(days))
}
