package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkdownReport(t *testing.T) {
	results := BacktestResults{
		Overall: OverallSummary{CompositeScore: 72.5, DirectionalAccuracy: 85, RMSE: 1.25, AvgConfidence: 64},
		TopPerformers: []ModelBenchmark{
			{Model: "openai::gpt-4o", CompositeScore: 72.5, DirectionalAccuracy: 85, RMSE: 1.25, BrierScore: 0.12, AvgConfidence: 64, CompletionRate: 100, Predictions: 9},
		},
		ExcludedModels: []ExcludedModel{
			{ModelBenchmark: ModelBenchmark{Model: "openai::flaky"}, Reason: ReasonFailed, Message: "rate limit hit"},
		},
	}

	md := MarkdownReport("run-1", results, 10)

	assert.Contains(t, md, "Run `run-1` over 10 ticks")
	assert.Contains(t, md, "## Top performers")
	assert.Contains(t, md, "| 1 | openai::gpt-4o | 72.50 | 85.0% |")
	assert.Contains(t, md, "## Excluded models")
	assert.Contains(t, md, "| openai::flaky | Failed |")
	assert.Contains(t, md, "rate limit hit")
	assert.NotContains(t, md, "completed but failed")
}

func TestMarkdownReportNoTopPerformers(t *testing.T) {
	results := BacktestResults{
		ExcludedModels: []ExcludedModel{
			{ModelBenchmark: ModelBenchmark{Model: "openai::gpt-4o"}, Reason: ReasonInsufficientCoverage, Message: "completion rate below participation threshold"},
		},
	}

	md := MarkdownReport("run-2", results, 5)

	assert.Contains(t, md, "completed but failed")
	assert.NotContains(t, md, "## Top performers")
	assert.Contains(t, md, "Insufficient Coverage")
}
