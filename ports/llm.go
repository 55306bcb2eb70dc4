package ports

import (
	"context"
	"encoding/json"

	"macrobench/domain/backtest"
)

// ModelInvoker sends one prompt to a resolved model backend and returns the
// structured JSON object extracted from its reply. Implementations own their
// transport timeout; every call is a suspension point.
type ModelInvoker interface {
	Invoke(ctx context.Context, prompt string) (json.RawMessage, error)
}

// InvokerRegistry resolves a compound model key and its provider credentials
// into a reusable invoker handle. Resolution happens once at configuration
// time; the orchestrator never re-dispatches on the provider string per call.
// Forecaster handles carry the transient-error retry policy, judge handles
// are single-attempt.
type InvokerRegistry interface {
	ResolveForecaster(id backtest.ForecasterID, credentials map[string]string) (ModelInvoker, error)
	ResolveJudge(id backtest.ForecasterID, credentials map[string]string) (ModelInvoker, error)
}
