// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for handle lifecycle, accept loops and I/O.

package control

import (
	"net/http"
	"time"

	"github.com/momentics/hioload-wrap/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector in this package.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	metricActiveHandles = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hioload",
		Name:      "active_handles",
		Help:      "Number of open handles by provider type",
	}, []string{"provider"})

	metricAcceptedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hioload",
		Name:      "accepted_connections_total",
		Help:      "Connections handed to onconnection",
	}, []string{"provider"})

	metricAcceptErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hioload",
		Name:      "accept_errors_total",
		Help:      "Failed accept attempts",
	}, []string{"provider"})

	metricAcceptBackoff = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hioload",
		Name:      "accept_backoff_seconds",
		Help:      "Most recent accept backoff delay, zero in steady state",
	}, []string{"provider"})

	metricBytesRead = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hioload",
		Name:      "bytes_read_total",
		Help:      "Bytes delivered to onread",
	}, []string{"provider"})

	metricBytesWritten = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hioload",
		Name:      "bytes_written_total",
		Help:      "Bytes written by completed writes",
	}, []string{"provider"})

	metricDatagrams = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hioload",
		Name:      "datagrams_total",
		Help:      "UDP datagrams by direction",
	}, []string{"direction"})
)

// Handler serves the package registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// HandleOpened records a new handle.
func HandleOpened(p api.ProviderType) {
	metricActiveHandles.WithLabelValues(p.String()).Inc()
}

// HandleClosed records a handle teardown.
func HandleClosed(p api.ProviderType) {
	metricActiveHandles.WithLabelValues(p.String()).Dec()
}

// ConnectionAccepted counts one delivered connection.
func ConnectionAccepted(p api.ProviderType) {
	metricAcceptedTotal.WithLabelValues(p.String()).Inc()
}

// AcceptFailed counts one failed accept.
func AcceptFailed(p api.ProviderType) {
	metricAcceptErrors.WithLabelValues(p.String()).Inc()
}

// SetAcceptBackoff publishes the current backoff delay; zero clears it.
func SetAcceptBackoff(p api.ProviderType, d time.Duration) {
	metricAcceptBackoff.WithLabelValues(p.String()).Set(d.Seconds())
}

// AddBytesRead adds n to the read counter.
func AddBytesRead(p api.ProviderType, n int) {
	metricBytesRead.WithLabelValues(p.String()).Add(float64(n))
}

// AddBytesWritten adds n to the write counter.
func AddBytesWritten(p api.ProviderType, n int) {
	metricBytesWritten.WithLabelValues(p.String()).Add(float64(n))
}

// DatagramSent counts one outbound datagram.
func DatagramSent() {
	metricDatagrams.WithLabelValues("sent").Inc()
}

// DatagramReceived counts one inbound datagram.
func DatagramReceived() {
	metricDatagrams.WithLabelValues("received").Inc()
}

// ActiveHandles returns the open-handle gauge for p.
func ActiveHandles(p api.ProviderType) prometheus.Gauge {
	return metricActiveHandles.WithLabelValues(p.String())
}

// AcceptBackoff returns the backoff gauge for p.
func AcceptBackoff(p api.ProviderType) prometheus.Gauge {
	return metricAcceptBackoff.WithLabelValues(p.String())
}
