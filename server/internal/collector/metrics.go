package collector

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shotspool_collector_uploads_total",
			Help: "Upload requests by result.",
		},
		[]string{"result"}, // stored | bad_request | too_large | failed
	)
	uploadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shotspool_collector_upload_bytes_total",
			Help: "Bytes of stored uploads.",
		},
	)
)

// NewRegistry returns a registry holding the collector metrics.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(uploadsTotal, uploadBytes)
	return reg
}
