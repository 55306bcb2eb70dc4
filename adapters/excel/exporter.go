package excel

import (
	"io"

	"github.com/xuri/excelize/v2"

	"macrobench/domain/backtest"
	"macrobench/internal/errors"
)

const (
	benchmarkSheet = "Benchmarks"
	excludedSheet  = "Excluded"
)

// Export writes a run's benchmarks and exclusions as an .xlsx workbook.
func Export(w io.Writer, results backtest.BacktestResults) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName(f.GetSheetName(0), benchmarkSheet)
	if _, err := f.NewSheet(excludedSheet); err != nil {
		return errors.Wrap(err, "failed to create excluded sheet")
	}

	if err := writeBenchmarks(f, results.TopPerformers); err != nil {
		return err
	}
	if err := writeExclusions(f, results.ExcludedModels); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return errors.Wrap(err, "failed to write workbook")
	}
	return nil
}

func writeBenchmarks(f *excelize.File, ranked []backtest.ModelBenchmark) error {
	header := []interface{}{"Rank", "Model", "Composite Score", "Directional Accuracy (%)",
		"RMSE", "Brier Score", "Avg Confidence (%)", "Completion Rate (%)", "Predictions"}
	if err := writeRow(f, benchmarkSheet, 1, header); err != nil {
		return err
	}
	for i, b := range ranked {
		row := []interface{}{i + 1, b.Model.String(), b.CompositeScore, b.DirectionalAccuracy,
			b.RMSE, b.BrierScore, b.AvgConfidence, b.CompletionRate, b.Predictions}
		if err := writeRow(f, benchmarkSheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeExclusions(f *excelize.File, excluded []backtest.ExcludedModel) error {
	header := []interface{}{"Model", "Reason", "Message", "Completion Rate (%)", "Predictions"}
	if err := writeRow(f, excludedSheet, 1, header); err != nil {
		return err
	}
	for i, e := range excluded {
		row := []interface{}{e.Model.String(), string(e.Reason), e.Message, e.CompletionRate, e.Predictions}
		if err := writeRow(f, excludedSheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return errors.Wrap(err, "failed to compute cell name")
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return errors.Wrapf(err, "failed to write row %d on %s", row, sheet)
	}
	return nil
}
