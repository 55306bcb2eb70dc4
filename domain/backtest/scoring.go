package backtest

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
)

// ParticipationThreshold is the minimum completion rate (percent) a model
// must reach to be ranked among top performers. The boundary is inclusive on
// the pass side: exactly 80% ranks.
const ParticipationThreshold = 80.0

// Composite score weights. They sum to 1 before the x100 scale.
const (
	weightDirection  = 0.4
	weightRMSE       = 0.3
	weightConfidence = 0.2
	weightBrier      = 0.1
)

// defaultFailureMessage annotates excluded models with no recorded error.
const defaultFailureMessage = "no successful forecasts recorded"

// sample is one scoreable prediction: the forecast, its confidence, and the
// realized values bracketing it.
type sample struct {
	prediction float64
	confidence float64
	actualNext float64
	actualPrev float64
}

// Score converts the accumulated tick results into ranked, comparable model
// benchmarks. It is a pure function of its inputs: it never mutates the tick
// or result sequences, and identical inputs yield identical results.
func Score(ticks []Tick, tickResults []TickResult, forecasters []ForecasterID, permanentErrors map[ForecasterID]string) BacktestResults {
	totalTicks := len(ticks) - 1

	if len(tickResults) == 0 {
		return allFailed(forecasters, permanentErrors)
	}

	series, allActuals := extractSeries(ticks, tickResults, forecasters)

	actualsRange := 0.0
	if len(allActuals) > 0 {
		actualsRange = floats.Max(allActuals) - floats.Min(allActuals)
	}

	var ranked []ModelBenchmark
	var excluded []ExcludedModel
	for _, id := range forecasters {
		samples := series[id]
		if len(samples) == 0 {
			excluded = append(excluded, failedStub(id, permanentErrors))
			continue
		}
		bench := computeBenchmark(id, samples, actualsRange, totalTicks)
		if bench.CompletionRate < ParticipationThreshold {
			excluded = append(excluded, ExcludedModel{
				ModelBenchmark: bench,
				Reason:         ReasonInsufficientCoverage,
				Message:        "completion rate below participation threshold",
			})
			continue
		}
		ranked = append(ranked, bench)
	}

	// Ties keep input order; composite descending.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].CompositeScore > ranked[j].CompositeScore
	})

	return BacktestResults{
		Overall:        summarize(ranked),
		TopPerformers:  ranked,
		ExcludedModels: excluded,
	}
}

// extractSeries collects per-model samples in forecaster input order. Ticks
// missing either the previous or the next actual contribute nothing, to
// either the sample count or the completion denominator.
func extractSeries(ticks []Tick, tickResults []TickResult, forecasters []ForecasterID) (map[ForecasterID][]sample, []float64) {
	series := make(map[ForecasterID][]sample, len(forecasters))
	var allActuals []float64

	for _, tr := range tickResults {
		prev := tr.TickData.Primary.Value
		next := tr.TickIndex + 1
		if prev == nil || next >= len(ticks) || ticks[next].Primary.Value == nil {
			continue
		}
		actual := *ticks[next].Primary.Value
		for _, id := range forecasters {
			forecast, ok := tr.Forecasts[id]
			if !ok {
				continue
			}
			series[id] = append(series[id], sample{
				prediction: forecast.Prediction,
				confidence: forecast.Confidence,
				actualNext: actual,
				actualPrev: *prev,
			})
			allActuals = append(allActuals, actual)
		}
	}
	return series, allActuals
}

func computeBenchmark(id ForecasterID, samples []sample, actualsRange float64, totalTicks int) ModelBenchmark {
	n := len(samples)

	correct := 0
	squaredErrors := make([]float64, 0, n)
	brierTerms := make([]float64, 0, n)
	confidences := make([]float64, 0, n)
	for _, s := range samples {
		outcome := 0.0
		if sign(s.prediction-s.actualPrev) == sign(s.actualNext-s.actualPrev) {
			correct++
			outcome = 1.0
		}
		diff := s.actualNext - s.prediction
		squaredErrors = append(squaredErrors, diff*diff)
		brierTerms = append(brierTerms, (s.confidence-outcome)*(s.confidence-outcome))
		confidences = append(confidences, s.confidence)
	}

	directionalAccuracy := float64(correct) / float64(n) * 100
	meanSquaredError, _ := stats.Mean(squaredErrors)
	rmse := math.Sqrt(meanSquaredError)
	brier, _ := stats.Mean(brierTerms)
	meanConfidence, _ := stats.Mean(confidences)
	avgConfidence := meanConfidence * 100

	normRMSE := 0.0
	if actualsRange > 0 {
		normRMSE = 1 - math.Min(1, rmse/actualsRange)
	}
	composite := 100 * (weightDirection*directionalAccuracy/100 +
		weightRMSE*normRMSE +
		weightConfidence*avgConfidence/100 +
		weightBrier*(1-brier))

	completionRate := 0.0
	if totalTicks > 0 {
		completionRate = float64(n) / float64(totalTicks) * 100
	}

	return ModelBenchmark{
		Model:               id,
		CompletionRate:      completionRate,
		DirectionalAccuracy: directionalAccuracy,
		RMSE:                rmse,
		BrierScore:          brier,
		AvgConfidence:       avgConfidence,
		CompositeScore:      composite,
		Predictions:         n,
	}
}

func summarize(ranked []ModelBenchmark) OverallSummary {
	if len(ranked) == 0 {
		return OverallSummary{}
	}
	composites := make([]float64, len(ranked))
	accuracies := make([]float64, len(ranked))
	rmses := make([]float64, len(ranked))
	confidences := make([]float64, len(ranked))
	for i, b := range ranked {
		composites[i] = b.CompositeScore
		accuracies[i] = b.DirectionalAccuracy
		rmses[i] = b.RMSE
		confidences[i] = b.AvgConfidence
	}
	composite, _ := stats.Mean(composites)
	accuracy, _ := stats.Mean(accuracies)
	rmse, _ := stats.Mean(rmses)
	confidence, _ := stats.Mean(confidences)
	return OverallSummary{
		CompositeScore:      composite,
		DirectionalAccuracy: accuracy,
		RMSE:                rmse,
		AvgConfidence:       confidence,
	}
}

func allFailed(forecasters []ForecasterID, permanentErrors map[ForecasterID]string) BacktestResults {
	excluded := make([]ExcludedModel, 0, len(forecasters))
	for _, id := range forecasters {
		excluded = append(excluded, failedStub(id, permanentErrors))
	}
	return BacktestResults{ExcludedModels: excluded}
}

func failedStub(id ForecasterID, permanentErrors map[ForecasterID]string) ExcludedModel {
	msg := permanentErrors[id]
	if msg == "" {
		msg = defaultFailureMessage
	}
	return ExcludedModel{
		ModelBenchmark: ModelBenchmark{Model: id},
		Reason:         ReasonFailed,
		Message:        msg,
	}
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
