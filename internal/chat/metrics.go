package chat

import "github.com/prometheus/client_golang/prometheus"

// Generation outcomes.
const (
	outcomeCompleted    = "completed"
	outcomeStreamError  = "stream_error"
	outcomeStartError   = "start_error"
	outcomeDisconnected = "disconnected"
)

var (
	generationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatgateway_generations_total",
		Help: "Chat generations by provider and outcome.",
	}, []string{"provider", "outcome"})

	tokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatgateway_tokens_total",
		Help: "Tokens consumed by provider, as reported upstream.",
	}, []string{"provider"})

	credentialSourceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatgateway_credential_source_total",
		Help: "Which credential tier supplied the provider key.",
	}, []string{"provider", "source"})
)

func init() {
	prometheus.MustRegister(generationsTotal, tokensTotal, credentialSourceTotal)
}
