package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrobench/adapters/llm"
	"macrobench/domain/backtest"
	"macrobench/domain/core"
	"macrobench/internal/errors"
	"macrobench/models"
)

func newTestManager() (*RunManager, *stubRegistry) {
	registry := &stubRegistry{
		forecasters: map[backtest.ForecasterID]*llm.MockInvoker{
			forecasterA: {Script: []llm.MockResult{{JSON: forecastJSON}}},
		},
		judge: &llm.MockInvoker{Script: []llm.MockResult{{JSON: judgeJSON}}},
	}
	svc := NewBacktestService(registry, zerolog.Nop())
	return NewRunManager(svc, nil, zerolog.Nop()), registry
}

func TestRunManagerLifecycle(t *testing.T) {
	manager, _ := newTestManager()
	ticks := makeTicks(fptr(100), fptr(110), fptr(105))

	id := manager.Start(testConfig(forecasterA), ticks, nil)

	run, err := manager.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 3, run.TickCount)

	require.Eventually(t, func() bool {
		run, err := manager.Get(context.Background(), id)
		return err == nil && run.Status == models.RunStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	run, err = manager.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, run.Results)
	assert.Len(t, run.TickResults, 2)
	assert.NotNil(t, run.CompletedAt)
}

func TestRunManagerUnknownRun(t *testing.T) {
	manager, _ := newTestManager()

	_, err := manager.Get(context.Background(), core.NewRunID())
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))

	err = manager.Cancel(core.NewRunID())
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}

func TestRunManagerList(t *testing.T) {
	manager, _ := newTestManager()
	ticks := makeTicks(fptr(100), fptr(110))

	first := manager.Start(testConfig(forecasterA), ticks, nil)
	second := manager.Start(testConfig(forecasterA), ticks, nil)

	runs, err := manager.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	ids := []core.RunID{runs[0].ID, runs[1].ID}
	assert.Contains(t, ids, first)
	assert.Contains(t, ids, second)

	limited, err := manager.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRunManagerCancel(t *testing.T) {
	registry := &stubRegistry{
		forecasters: map[backtest.ForecasterID]*llm.MockInvoker{
			forecasterA: {Fn: func(int, string) (json.RawMessage, error) {
				time.Sleep(50 * time.Millisecond)
				return json.RawMessage(forecastJSON), nil
			}},
		},
		judge: &llm.MockInvoker{Script: []llm.MockResult{{JSON: judgeJSON}}},
	}
	svc := NewBacktestService(registry, zerolog.Nop())
	manager := NewRunManager(svc, nil, zerolog.Nop())

	// Enough ticks that cancellation lands mid-run.
	values := make([]*float64, 30)
	for i := range values {
		v := float64(100 + i)
		values[i] = &v
	}
	cfg := testConfig(forecasterA)
	cfg.MaxPredictions = 29

	id := manager.Start(cfg, makeTicks(values...), nil)
	require.NoError(t, manager.Cancel(id))

	require.Eventually(t, func() bool {
		run, err := manager.Get(context.Background(), id)
		return err == nil && run.Status == models.RunStatusCanceled
	}, 5*time.Second, 10*time.Millisecond)
}
