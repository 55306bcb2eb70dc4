package backtest

import (
	"fmt"
	"strings"
)

// MarkdownReport renders a run's results as a markdown document. The CLI
// prints it directly; the HTTP layer converts it to HTML.
func MarkdownReport(runID string, results BacktestResults, tickCount int) string {
	var sb strings.Builder

	sb.WriteString("# Backtest Report\n\n")
	fmt.Fprintf(&sb, "Run `%s` over %d ticks.\n\n", runID, tickCount)

	if len(results.TopPerformers) == 0 {
		sb.WriteString("**Run completed but failed: no model met the participation threshold.**\n\n")
	} else {
		sb.WriteString("## Overall (top performers)\n\n")
		fmt.Fprintf(&sb, "- Composite score: %.2f\n", results.Overall.CompositeScore)
		fmt.Fprintf(&sb, "- Directional accuracy: %.1f%%\n", results.Overall.DirectionalAccuracy)
		fmt.Fprintf(&sb, "- RMSE: %.4f\n", results.Overall.RMSE)
		fmt.Fprintf(&sb, "- Average confidence: %.1f%%\n\n", results.Overall.AvgConfidence)

		sb.WriteString("## Top performers\n\n")
		sb.WriteString("| Rank | Model | Composite | Dir. Acc. | RMSE | Brier | Confidence | Completion | Predictions |\n")
		sb.WriteString("|------|-------|-----------|-----------|------|-------|------------|------------|-------------|\n")
		for i, b := range results.TopPerformers {
			fmt.Fprintf(&sb, "| %d | %s | %.2f | %.1f%% | %.4f | %.3f | %.1f%% | %.1f%% | %d |\n",
				i+1, b.Model, b.CompositeScore, b.DirectionalAccuracy, b.RMSE,
				b.BrierScore, b.AvgConfidence, b.CompletionRate, b.Predictions)
		}
		sb.WriteString("\n")
	}

	if len(results.ExcludedModels) > 0 {
		sb.WriteString("## Excluded models\n\n")
		sb.WriteString("| Model | Reason | Completion | Predictions | Detail |\n")
		sb.WriteString("|-------|--------|------------|-------------|--------|\n")
		for _, e := range results.ExcludedModels {
			fmt.Fprintf(&sb, "| %s | %s | %.1f%% | %d | %s |\n",
				e.Model, e.Reason, e.CompletionRate, e.Predictions, e.Message)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
