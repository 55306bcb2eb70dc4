package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrobench/adapters/llm"
	"macrobench/domain/backtest"
	"macrobench/internal/errors"
	"macrobench/ports"
)

const (
	forecasterA = backtest.ForecasterID("openai::alpha")
	forecasterB = backtest.ForecasterID("anthropic::beta")
	judgeModel  = backtest.ForecasterID("openai::judge")

	forecastJSON = `{"prediction": 105, "unit": "%", "rationale": "steady", "confidence": 0.8}`
	judgeJSON    = `{"accuracy": 0.9, "error": 5, "feedback": "tighten your bands"}`
)

// stubRegistry hands out scripted invokers instead of provider backends.
type stubRegistry struct {
	forecasters map[backtest.ForecasterID]*llm.MockInvoker
	judge       *llm.MockInvoker
	failResolve map[backtest.ForecasterID]error
	judgeErr    error
}

func (r *stubRegistry) ResolveForecaster(id backtest.ForecasterID, _ map[string]string) (ports.ModelInvoker, error) {
	if err := r.failResolve[id]; err != nil {
		return nil, err
	}
	inv, ok := r.forecasters[id]
	if !ok {
		return nil, errors.ConfigInvalid(fmt.Sprintf("no stub for %s", id))
	}
	return inv, nil
}

func (r *stubRegistry) ResolveJudge(backtest.ForecasterID, map[string]string) (ports.ModelInvoker, error) {
	if r.judgeErr != nil {
		return nil, r.judgeErr
	}
	return r.judge, nil
}

func fptr(v float64) *float64 { return &v }

func makeTicks(values ...*float64) []backtest.Tick {
	base, _ := time.Parse("2006-01-02", "2024-01-01")
	ticks := make([]backtest.Tick, len(values))
	for i, v := range values {
		ticks[i] = backtest.Tick{
			Date:      base.AddDate(0, i, 0),
			Country:   "United States",
			Indicator: "CPI YoY",
			Primary:   backtest.Observation{Title: "CPI YoY", Value: v, Unit: "%"},
		}
	}
	return ticks
}

func testConfig(forecasters ...backtest.ForecasterID) backtest.RunConfig {
	return backtest.RunConfig{
		Forecasters:    forecasters,
		Judge:          judgeModel,
		FeedbackLimit:  3,
		MaxPredictions: 10,
	}
}

func TestRunHappyPath(t *testing.T) {
	a := &llm.MockInvoker{Script: []llm.MockResult{{JSON: forecastJSON}}}
	b := &llm.MockInvoker{Script: []llm.MockResult{{JSON: forecastJSON}}}
	judge := &llm.MockInvoker{Script: []llm.MockResult{{JSON: judgeJSON}}}
	registry := &stubRegistry{
		forecasters: map[backtest.ForecasterID]*llm.MockInvoker{forecasterA: a, forecasterB: b},
		judge:       judge,
	}
	svc := NewBacktestService(registry, zerolog.Nop())

	ticks := makeTicks(fptr(100), fptr(110), fptr(105))
	outcome, err := svc.Run(context.Background(), testConfig(forecasterA, forecasterB), ticks, nil)
	require.NoError(t, err)
	require.NotNil(t, outcome)

	require.Len(t, outcome.TickResults, 2)
	for _, tr := range outcome.TickResults {
		assert.Len(t, tr.Forecasts, 2)
		assert.Len(t, tr.Evaluations, 2)
	}

	assert.Equal(t, 2, a.CallCount())
	assert.Equal(t, 2, b.CallCount())
	assert.Equal(t, 4, judge.CallCount())

	// Judge feedback from tick 0 feeds the tick 1 forecast prompt.
	require.Len(t, a.Prompts, 2)
	assert.NotContains(t, a.Prompts[0], "tighten your bands")
	assert.Contains(t, a.Prompts[1], "tighten your bands")

	rec := outcome.State.Record(forecasterA)
	require.Len(t, rec.Performance, 2)
	assert.Equal(t, 110.0, rec.Performance[0].Actual)
	assert.Equal(t, 105.0, rec.Performance[1].Actual)
	// The judge-reported error is carried as-is, never recomputed.
	assert.Equal(t, 5.0, rec.Performance[0].Error)

	assert.Len(t, outcome.Results.TopPerformers, 2)
	assert.Empty(t, outcome.Results.ExcludedModels)
}

func TestRunJudgeResolutionAborts(t *testing.T) {
	registry := &stubRegistry{judgeErr: errors.AuthError("no credentials configured")}
	svc := NewBacktestService(registry, zerolog.Nop())

	outcome, err := svc.Run(context.Background(), testConfig(forecasterA), makeTicks(fptr(100), fptr(110)), nil)
	require.Error(t, err)
	assert.Nil(t, outcome)
}

func TestRunForecasterResolutionFailureIsIsolated(t *testing.T) {
	a := &llm.MockInvoker{Script: []llm.MockResult{{JSON: forecastJSON}}}
	judge := &llm.MockInvoker{Script: []llm.MockResult{{JSON: judgeJSON}}}
	registry := &stubRegistry{
		forecasters: map[backtest.ForecasterID]*llm.MockInvoker{forecasterA: a},
		judge:       judge,
		failResolve: map[backtest.ForecasterID]error{forecasterB: errors.AuthError("key rejected")},
	}
	svc := NewBacktestService(registry, zerolog.Nop())

	ticks := makeTicks(fptr(100), fptr(110), fptr(105))
	outcome, err := svc.Run(context.Background(), testConfig(forecasterA, forecasterB), ticks, nil)
	require.NoError(t, err)

	require.Len(t, outcome.Results.TopPerformers, 1)
	assert.Equal(t, forecasterA, outcome.Results.TopPerformers[0].Model)

	require.Len(t, outcome.Results.ExcludedModels, 1)
	excl := outcome.Results.ExcludedModels[0]
	assert.Equal(t, forecasterB, excl.Model)
	assert.Equal(t, backtest.ReasonFailed, excl.Reason)
	assert.Contains(t, excl.Message, "key rejected")
}

func TestRunInvocationFailureIsSticky(t *testing.T) {
	a := &llm.MockInvoker{Script: []llm.MockResult{{JSON: forecastJSON}}}
	b := &llm.MockInvoker{Script: []llm.MockResult{{Err: errors.AuthError("boom")}}}
	judge := &llm.MockInvoker{Script: []llm.MockResult{{JSON: judgeJSON}}}
	registry := &stubRegistry{
		forecasters: map[backtest.ForecasterID]*llm.MockInvoker{forecasterA: a, forecasterB: b},
		judge:       judge,
	}
	svc := NewBacktestService(registry, zerolog.Nop())

	ticks := makeTicks(fptr(100), fptr(110), fptr(105))
	outcome, err := svc.Run(context.Background(), testConfig(forecasterA, forecasterB), ticks, nil)
	require.NoError(t, err)

	// The failed model sits out every later tick.
	assert.Equal(t, 1, b.CallCount())
	assert.Equal(t, 2, a.CallCount())

	require.Len(t, outcome.TickResults, 2)
	assert.Len(t, outcome.TickResults[0].Forecasts, 1)
	assert.Len(t, outcome.TickResults[1].Forecasts, 1)

	require.Len(t, outcome.Results.ExcludedModels, 1)
	assert.Equal(t, backtest.ReasonFailed, outcome.Results.ExcludedModels[0].Reason)
}

func TestRunMalformedForecastShape(t *testing.T) {
	a := &llm.MockInvoker{Script: []llm.MockResult{{JSON: `{"prediction": "up a lot"}`}}}
	judge := &llm.MockInvoker{Script: []llm.MockResult{{JSON: judgeJSON}}}
	registry := &stubRegistry{
		forecasters: map[backtest.ForecasterID]*llm.MockInvoker{forecasterA: a},
		judge:       judge,
	}
	svc := NewBacktestService(registry, zerolog.Nop())

	outcome, err := svc.Run(context.Background(), testConfig(forecasterA), makeTicks(fptr(100), fptr(110)), nil)
	require.NoError(t, err)

	assert.Empty(t, outcome.TickResults)
	assert.Equal(t, 0, judge.CallCount())
	require.Len(t, outcome.Results.ExcludedModels, 1)
	assert.Equal(t, backtest.ReasonFailed, outcome.Results.ExcludedModels[0].Reason)
}

func TestRunHaltsOnMissingGroundTruth(t *testing.T) {
	a := &llm.MockInvoker{Script: []llm.MockResult{{JSON: forecastJSON}}}
	judge := &llm.MockInvoker{Script: []llm.MockResult{{JSON: judgeJSON}}}
	registry := &stubRegistry{
		forecasters: map[backtest.ForecasterID]*llm.MockInvoker{forecasterA: a},
		judge:       judge,
	}
	svc := NewBacktestService(registry, zerolog.Nop())

	// Tick 3 has no published value, so the loop stops while processing
	// tick 2, keeping ticks 0 and 1. Tick 4 is fully populated but never
	// attempted.
	ticks := makeTicks(fptr(100), fptr(110), fptr(105), nil, fptr(120))
	outcome, err := svc.Run(context.Background(), testConfig(forecasterA), ticks, nil)
	require.NoError(t, err)

	require.Len(t, outcome.TickResults, 2)
	assert.Equal(t, 0, outcome.TickResults[0].TickIndex)
	assert.Equal(t, 1, outcome.TickResults[1].TickIndex)
	assert.Equal(t, 2, a.CallCount())

	// 2 of 4 possible steps is below the participation threshold.
	require.Len(t, outcome.Results.ExcludedModels, 1)
	assert.Equal(t, backtest.ReasonInsufficientCoverage, outcome.Results.ExcludedModels[0].Reason)
}

func TestRunJudgeFailureExcludesForecaster(t *testing.T) {
	a := &llm.MockInvoker{Script: []llm.MockResult{{JSON: forecastJSON}}}
	judge := &llm.MockInvoker{Script: []llm.MockResult{{Err: errors.MalformedOutput("no json")}}}
	registry := &stubRegistry{
		forecasters: map[backtest.ForecasterID]*llm.MockInvoker{forecasterA: a},
		judge:       judge,
	}
	svc := NewBacktestService(registry, zerolog.Nop())

	ticks := makeTicks(fptr(100), fptr(110), fptr(105))
	outcome, err := svc.Run(context.Background(), testConfig(forecasterA), ticks, nil)
	require.NoError(t, err)

	// Without an evaluation the tick never commits, and the affected
	// forecaster is out of the run.
	assert.Empty(t, outcome.TickResults)
	assert.Equal(t, 1, a.CallCount())
	assert.Equal(t, 1, judge.CallCount())

	require.Len(t, outcome.Results.ExcludedModels, 1)
	assert.Equal(t, backtest.ReasonFailed, outcome.Results.ExcludedModels[0].Reason)
}

func TestRunRespectsMaxPredictions(t *testing.T) {
	a := &llm.MockInvoker{Script: []llm.MockResult{{JSON: forecastJSON}}}
	judge := &llm.MockInvoker{Script: []llm.MockResult{{JSON: judgeJSON}}}
	registry := &stubRegistry{
		forecasters: map[backtest.ForecasterID]*llm.MockInvoker{forecasterA: a},
		judge:       judge,
	}
	svc := NewBacktestService(registry, zerolog.Nop())

	cfg := testConfig(forecasterA)
	cfg.MaxPredictions = 2
	ticks := makeTicks(fptr(100), fptr(110), fptr(105), fptr(108), fptr(112))
	outcome, err := svc.Run(context.Background(), cfg, ticks, nil)
	require.NoError(t, err)

	assert.Len(t, outcome.TickResults, 2)
	assert.Equal(t, 2, a.CallCount())
}

func TestRunCancellationReturnsPartialOutcome(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &llm.MockInvoker{Script: []llm.MockResult{{JSON: forecastJSON}}}
	judge := &llm.MockInvoker{Script: []llm.MockResult{{JSON: judgeJSON}}}
	registry := &stubRegistry{
		forecasters: map[backtest.ForecasterID]*llm.MockInvoker{forecasterA: a},
		judge:       judge,
	}
	svc := NewBacktestService(registry, zerolog.Nop())

	outcome, err := svc.Run(ctx, testConfig(forecasterA), makeTicks(fptr(100), fptr(110)), nil)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, outcome)
	assert.Empty(t, outcome.TickResults)
}

func TestRunPreconditions(t *testing.T) {
	svc := NewBacktestService(&stubRegistry{}, zerolog.Nop())
	twoTicks := makeTicks(fptr(100), fptr(110))

	tests := []struct {
		name  string
		cfg   backtest.RunConfig
		ticks []backtest.Tick
	}{
		{"no judge", backtest.RunConfig{Forecasters: []backtest.ForecasterID{forecasterA}, FeedbackLimit: 3, MaxPredictions: 10}, twoTicks},
		{"no forecasters", backtest.RunConfig{Judge: judgeModel, FeedbackLimit: 3, MaxPredictions: 10}, twoTicks},
		{"one tick", testConfig(forecasterA), makeTicks(fptr(100))},
		{"negative feedback limit", backtest.RunConfig{Forecasters: []backtest.ForecasterID{forecasterA}, Judge: judgeModel, FeedbackLimit: -1, MaxPredictions: 10}, twoTicks},
		{"zero max predictions", backtest.RunConfig{Forecasters: []backtest.ForecasterID{forecasterA}, Judge: judgeModel, FeedbackLimit: 3}, twoTicks},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := svc.Run(context.Background(), tt.cfg, tt.ticks, nil)
			require.Error(t, err)
			assert.Nil(t, outcome)
			assert.Equal(t, errors.CodePreconditionFailed, errors.GetCode(err))
		})
	}
}
