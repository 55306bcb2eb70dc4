package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Invocation outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	// ModelInvocations counts LLM calls by provider, role and outcome.
	ModelInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "macrobench",
		Name:      "model_invocations_total",
		Help:      "LLM invocations by provider, role and outcome.",
	}, []string{"provider", "role", "outcome"})

	// InvocationRetries counts retry attempts after retryable failures.
	InvocationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "macrobench",
		Name:      "invocation_retries_total",
		Help:      "Forecaster invocation retries after retryable failures.",
	})

	// TicksProcessed counts committed simulation ticks.
	TicksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "macrobench",
		Name:      "ticks_processed_total",
		Help:      "Tick results committed by the simulation loop.",
	})

	// ModelsFailed counts sticky per-model failures.
	ModelsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "macrobench",
		Name:      "models_failed_total",
		Help:      "Forecasters permanently excluded during a run.",
	})
)
