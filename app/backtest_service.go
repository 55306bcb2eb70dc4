package app

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"macrobench/domain/backtest"
	"macrobench/internal/errors"
	"macrobench/internal/metrics"
	"macrobench/ports"
)

// BacktestService drives the tick-by-tick simulation: forecaster fan-out,
// judge fan-out, rolling history updates, and final scoring.
type BacktestService struct {
	registry ports.InvokerRegistry
	logger   zerolog.Logger
}

// NewBacktestService creates the orchestrator.
func NewBacktestService(registry ports.InvokerRegistry, logger zerolog.Logger) *BacktestService {
	return &BacktestService{
		registry: registry,
		logger:   logger.With().Str("component", "backtest").Logger(),
	}
}

// RunOutcome is everything one run produces: the committed tick results, the
// final per-model state, and the scored report.
type RunOutcome struct {
	TickResults []backtest.TickResult
	State       *backtest.RunState
	Results     backtest.BacktestResults
}

// Run executes one backtest. Per-model failures never abort the run; only a
// failed precondition, an unresolvable judge, or context cancellation do.
// On cancellation the partial outcome is returned alongside ctx.Err().
func (s *BacktestService) Run(ctx context.Context, cfg backtest.RunConfig, ticks []backtest.Tick, credentials map[string]string) (*RunOutcome, error) {
	if err := checkPreconditions(cfg, ticks); err != nil {
		return nil, err
	}

	// The judge is shared infrastructure: failing to resolve it aborts
	// setup rather than degrading into an all-models-excluded run.
	judge, err := s.registry.ResolveJudge(cfg.Judge, credentials)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve judge %s", cfg.Judge)
	}

	state := backtest.NewRunState(cfg.Forecasters)
	invokers := make(map[backtest.ForecasterID]ports.ModelInvoker, len(cfg.Forecasters))
	for _, id := range state.Forecasters() {
		invoker, err := s.registry.ResolveForecaster(id, credentials)
		if err != nil {
			s.logger.Warn().Err(err).Str("forecaster", id.String()).Msg("forecaster failed resolution")
			state.Record(id).Fail(err.Error())
			metrics.ModelsFailed.Inc()
			continue
		}
		invokers[id] = invoker
	}

	engine := backtest.NewPromptEngine(cfg)
	steps := len(ticks) - 1
	if cfg.MaxPredictions < steps {
		steps = cfg.MaxPredictions
	}

	var tickResults []backtest.TickResult
	var runErr error

	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		current, next := ticks[i], ticks[i+1]
		if next.Primary.Value == nil {
			// No ground truth to score against: the whole loop halts here,
			// keeping everything committed so far.
			s.logger.Info().Int("tick", i).Msg("next tick has no ground truth, halting run")
			break
		}

		active := state.Active()
		if len(active) == 0 {
			s.logger.Warn().Int("tick", i).Msg("no active forecasters remain")
			break
		}

		forecasts := s.forecastPhase(ctx, engine, state, invokers, active, current, next)
		evaluations := s.judgePhase(ctx, engine, state, judge, cfg.Judge, i, next, forecasts)

		if len(evaluations) > 0 {
			tickResults = append(tickResults, backtest.TickResult{
				TickIndex:   i,
				TickData:    current,
				Forecasts:   forecasts,
				Evaluations: evaluations,
			})
			metrics.TicksProcessed.Inc()
		}
	}

	results := backtest.Score(ticks, tickResults, state.Forecasters(), state.PermanentErrors())
	return &RunOutcome{
		TickResults: tickResults,
		State:       state,
		Results:     results,
	}, runErr
}

// forecastPhase invokes every active forecaster concurrently and waits for
// all of them. Failures are converted into sticky per-model exclusions.
func (s *BacktestService) forecastPhase(
	ctx context.Context,
	engine *backtest.PromptEngine,
	state *backtest.RunState,
	invokers map[backtest.ForecasterID]ports.ModelInvoker,
	active []backtest.ForecasterID,
	current, next backtest.Tick,
) map[backtest.ForecasterID]backtest.ForecastResult {
	type outcome struct {
		forecast backtest.ForecastResult
		err      error
	}
	outcomes := make([]outcome, len(active))

	// History reads inside the goroutines are safe: records mutate only
	// between phases, on the orchestrating flow.
	g, gctx := errgroup.WithContext(ctx)
	for idx, id := range active {
		idx, id := idx, id
		g.Go(func() error {
			prompt := engine.ForecastPrompt(current, next, state.Record(id))
			raw, err := invokers[id].Invoke(gctx, prompt)
			if err != nil {
				outcomes[idx] = outcome{err: err}
				return nil
			}
			var forecast backtest.ForecastResult
			if err := json.Unmarshal(raw, &forecast); err != nil {
				outcomes[idx] = outcome{err: errors.MalformedOutput("forecast JSON has wrong shape: " + err.Error())}
				return nil
			}
			outcomes[idx] = outcome{forecast: forecast}
			return nil
		})
	}
	_ = g.Wait()

	forecasts := make(map[backtest.ForecasterID]backtest.ForecastResult, len(active))
	for idx, id := range active {
		o := outcomes[idx]
		if o.err != nil {
			s.logger.Warn().Err(o.err).Str("forecaster", id.String()).Msg("forecaster permanently excluded")
			state.Record(id).Fail(o.err.Error())
			metrics.ModelsFailed.Inc()
			metrics.ModelInvocations.WithLabelValues(id.Provider(), "forecaster", metrics.OutcomeError).Inc()
			continue
		}
		metrics.ModelInvocations.WithLabelValues(id.Provider(), "forecaster", metrics.OutcomeSuccess).Inc()
		forecasts[id] = o.forecast
	}
	return forecasts
}

// judgePhase scores every successful forecast concurrently with the shared
// judge model. Judge calls are not retried; a judge failure is fatal for the
// affected forecaster's further participation.
func (s *BacktestService) judgePhase(
	ctx context.Context,
	engine *backtest.PromptEngine,
	state *backtest.RunState,
	judge ports.ModelInvoker,
	judgeID backtest.ForecasterID,
	tickIndex int,
	next backtest.Tick,
	forecasts map[backtest.ForecasterID]backtest.ForecastResult,
) map[backtest.ForecasterID]backtest.JudgeResult {
	judged := make([]backtest.ForecasterID, 0, len(forecasts))
	for _, id := range state.Forecasters() {
		if _, ok := forecasts[id]; ok {
			judged = append(judged, id)
		}
	}

	type outcome struct {
		result backtest.JudgeResult
		err    error
	}
	outcomes := make([]outcome, len(judged))
	actual := *next.Primary.Value

	g, gctx := errgroup.WithContext(ctx)
	for idx, id := range judged {
		idx, id := idx, id
		g.Go(func() error {
			prompt := engine.JudgePrompt(id, tickIndex, next, forecasts[id], actual, state.Record(id))
			raw, err := judge.Invoke(gctx, prompt)
			if err != nil {
				outcomes[idx] = outcome{err: err}
				return nil
			}
			var result backtest.JudgeResult
			if err := json.Unmarshal(raw, &result); err != nil {
				outcomes[idx] = outcome{err: errors.MalformedOutput("judge JSON has wrong shape: " + err.Error())}
				return nil
			}
			outcomes[idx] = outcome{result: result}
			return nil
		})
	}
	_ = g.Wait()

	evaluations := make(map[backtest.ForecasterID]backtest.JudgeResult, len(judged))
	for idx, id := range judged {
		o := outcomes[idx]
		if o.err != nil {
			s.logger.Warn().Err(o.err).Str("forecaster", id.String()).Msg("judge failed, forecaster permanently excluded")
			state.Record(id).Fail(o.err.Error())
			metrics.ModelsFailed.Inc()
			metrics.ModelInvocations.WithLabelValues(judgeID.Provider(), "judge", metrics.OutcomeError).Inc()
			continue
		}
		metrics.ModelInvocations.WithLabelValues(judgeID.Provider(), "judge", metrics.OutcomeSuccess).Inc()
		evaluations[id] = o.result

		rec := state.Record(id)
		rec.Feedback = append(rec.Feedback, o.result.Feedback)
		rec.Performance = append(rec.Performance, backtest.PerformanceEntry{
			Prediction: forecasts[id].Prediction,
			Actual:     actual,
			Error:      o.result.Error,
		})
	}
	return evaluations
}

func checkPreconditions(cfg backtest.RunConfig, ticks []backtest.Tick) error {
	if cfg.Judge == "" {
		return errors.PreconditionFailed("no judge model selected")
	}
	if len(cfg.Forecasters) == 0 {
		return errors.PreconditionFailed("no forecasters selected")
	}
	if len(ticks) < 2 {
		return errors.PreconditionFailed("at least two ticks are required")
	}
	if cfg.FeedbackLimit < 0 {
		return errors.PreconditionFailed("feedback limit must be >= 0")
	}
	if cfg.MaxPredictions < 1 {
		return errors.PreconditionFailed("max predictions must be >= 1")
	}
	return nil
}
