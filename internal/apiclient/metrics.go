package apiclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	modeLive = "live"
	modeMock = "mock"
)

var (
	callsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "palmastro_client",
			Name:      "api_calls_total",
			Help:      "API operations dispatched, by operation and mode.",
		},
		[]string{"op", "mode"},
	)

	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "palmastro_client",
			Name:      "api_fallbacks_total",
			Help:      "Live API failures replaced by simulated responses.",
		},
		[]string{"op"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "palmastro_client",
			Name:      "api_retries_total",
			Help:      "Live API requests retried after a recoverable failure.",
		},
		[]string{"op"},
	)
)
