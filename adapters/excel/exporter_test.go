package excel

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"macrobench/domain/backtest"
)

func TestExport(t *testing.T) {
	results := backtest.BacktestResults{
		TopPerformers: []backtest.ModelBenchmark{
			{Model: "openai::gpt-4o", CompositeScore: 72.5, DirectionalAccuracy: 85, RMSE: 1.25, BrierScore: 0.12, AvgConfidence: 64, CompletionRate: 100, Predictions: 9},
		},
		ExcludedModels: []backtest.ExcludedModel{
			{ModelBenchmark: backtest.ModelBenchmark{Model: "openai::flaky"}, Reason: backtest.ReasonFailed, Message: "rate limit hit"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, results))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Benchmarks", "Excluded"}, f.GetSheetList())

	model, err := f.GetCellValue("Benchmarks", "B2")
	require.NoError(t, err)
	assert.Equal(t, "openai::gpt-4o", model)

	reason, err := f.GetCellValue("Excluded", "B2")
	require.NoError(t, err)
	assert.Equal(t, "Failed", reason)
}
