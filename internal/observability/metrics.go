package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the vault server.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    prometheus.Histogram
	ConnectionsActive  prometheus.Gauge
	ConnectionsTotal   prometheus.Counter
	DecryptFailures    prometheus.Counter
	UnknownConnections prometheus.Counter
	RequestsThrottled  prometheus.Counter
	ProofsTotal        *prometheus.CounterVec
	BlobsStoredTotal   prometheus.Counter
	BlobsDeletedTotal  prometheus.Counter
	BlobBytesWritten   prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hashvault_requests_total",
			Help: "Total protocol requests by command and outcome",
		}, []string{"command", "outcome"}),
		RequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hashvault_request_duration_seconds",
			Help:    "Request handling duration",
			Buckets: prometheus.DefBuckets,
		}),
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hashvault_connections_active",
			Help: "Live encrypted connections",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "hashvault_connections_total",
			Help: "Total handshakes completed",
		}),
		DecryptFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "hashvault_decrypt_failures_total",
			Help: "Transport AEAD open failures",
		}),
		UnknownConnections: factory.NewCounter(prometheus.CounterOpts{
			Name: "hashvault_unknown_connections_total",
			Help: "Encrypted messages referencing unknown connection ids",
		}),
		RequestsThrottled: factory.NewCounter(prometheus.CounterOpts{
			Name: "hashvault_requests_throttled_total",
			Help: "Requests rejected by the per-address rate limiter",
		}),
		ProofsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hashvault_seed_proofs_total",
			Help: "prove_seed attempts by outcome",
		}, []string{"outcome"}),
		BlobsStoredTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "hashvault_blobs_stored_total",
			Help: "Blobs written to the store",
		}),
		BlobsDeletedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "hashvault_blobs_deleted_total",
			Help: "Blobs removed from the store",
		}),
		BlobBytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "hashvault_blob_bytes_written_total",
			Help: "Ciphertext bytes written to the store",
		}),
		registry: registry,
	}
}

// Handler returns the scrape endpoint handler for this metric set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
