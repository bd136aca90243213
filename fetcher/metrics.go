package fetcher

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "fetcher"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of item requests sent to peers.
	RequestsSent metrics.Counter

	// Number of times a tracker exhausted its candidate peer list and rebuilt
	// it from the current peer population.
	PeerListRebuilds metrics.Counter

	// Number of items currently being tracked, across every fetcher instance
	// handed this Metrics value.
	//
	// NB: there are many ItemFetchers in the system at once, but they share a
	// single gauge for all the items being fetched by all of them. Be
	// careful, therefore, to only increment and decrement this gauge, not set
	// it absolutely.
	ItemsFetching metrics.Gauge
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		RequestsSent: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "requests_sent",
			Help:      "Number of item requests sent to peers.",
		}, labels).With(labelsAndValues...),

		PeerListRebuilds: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "peer_list_rebuilds",
			Help:      "Number of times a tracker ran out of candidate peers and rebuilt its list.",
		}, labels).With(labelsAndValues...),

		ItemsFetching: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "items_fetching",
			Help:      "Number of items currently being fetched, across all fetcher instances.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		RequestsSent:     discard.NewCounter(),
		PeerListRebuilds: discard.NewCounter(),
		ItemsFetching:    discard.NewGauge(),
	}
}
