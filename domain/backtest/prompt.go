package backtest

import (
	"fmt"
	"strconv"
	"strings"
)

// NoHistorySentinel is substituted for an empty feedback or performance
// history block on a model's first scored tick.
const NoHistorySentinel = "None (first tick)"

// dateLayout is the short date form used inside prompts.
const dateLayout = "Jan 2, 2006"

// Render replaces every recognized bracketed token in template with its
// value. Unrecognized tokens are left verbatim.
func Render(template string, tokens map[string]string) string {
	out := template
	for key, value := range tokens {
		out = strings.ReplaceAll(out, "["+key+"]", value)
	}
	return out
}

// PromptEngine builds forecaster and judge prompts for one run. Templates
// default to the built-in ones when the run spec leaves them empty.
type PromptEngine struct {
	forecastTemplate string
	judgeTemplate    string
	feedbackLimit    int
}

// NewPromptEngine creates the engine for a run configuration.
func NewPromptEngine(cfg RunConfig) *PromptEngine {
	e := &PromptEngine{
		forecastTemplate: cfg.ForecastTemplate,
		judgeTemplate:    cfg.JudgeTemplate,
		feedbackLimit:    cfg.FeedbackLimit,
	}
	if strings.TrimSpace(e.forecastTemplate) == "" {
		e.forecastTemplate = DefaultForecastTemplate
	}
	if strings.TrimSpace(e.judgeTemplate) == "" {
		e.judgeTemplate = DefaultJudgeTemplate
	}
	return e
}

// ForecastPrompt builds the prompt asking one forecaster to predict the next
// tick's primary value, carrying its recent judge feedback.
func (e *PromptEngine) ForecastPrompt(current, next Tick, rec *ModelRecord) string {
	return Render(e.forecastTemplate, map[string]string{
		"COUNTRY":        current.Country,
		"INDICATOR":      current.Indicator,
		"DATE":           current.Date.Format(dateLayout),
		"VALUE":          formatValue(current.Primary.Value),
		"UNIT":           current.Primary.Unit,
		"PEER_DATA":      formatPeerBlock(current.Peers),
		"FEEDBACK_LIMIT": strconv.Itoa(e.feedbackLimit),
		"PAST_FEEDBACK":  formatFeedbackBlock(rec.RecentFeedback(e.feedbackLimit)),
		"NEXT_DATE":      next.Date.Format(dateLayout),
	})
}

// JudgePrompt builds the prompt asking the judge to score one forecast
// against the realized value, carrying the forecaster's recent performance.
func (e *PromptEngine) JudgePrompt(id ForecasterID, tickIndex int, next Tick, forecast ForecastResult, actual float64, rec *ModelRecord) string {
	return Render(e.judgeTemplate, map[string]string{
		"MODEL_NAME":       id.String(),
		"TICK_INDEX":       strconv.Itoa(tickIndex),
		"INDICATOR":        next.Indicator,
		"COUNTRY":          next.Country,
		"PERIOD":           next.Date.Format(dateLayout),
		"PREDICTION":       formatFloat(forecast.Prediction),
		"UNIT":             forecast.Unit,
		"ACTUAL":           formatFloat(actual),
		"CONFIDENCE":       formatFloat(forecast.Confidence),
		"FEEDBACK_LIMIT":   strconv.Itoa(e.feedbackLimit),
		"PAST_PERFORMANCE": formatPerformanceBlock(rec.RecentPerformance(e.feedbackLimit)),
	})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatValue(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return formatFloat(*v)
}

// formatPeerBlock renders peer observations one per line. An empty peer list
// renders an empty block, not the history sentinel.
func formatPeerBlock(peers []PeerObservation) string {
	lines := make([]string, 0, len(peers))
	for _, p := range peers {
		lines = append(lines, fmt.Sprintf("- %s: %s %s (%s)", p.Title, formatValue(p.Value), p.Unit, p.Relationship))
	}
	return strings.Join(lines, "\n")
}

// formatFeedbackBlock joins past judge feedback verbatim. Feedback strings
// must survive byte-for-byte so the judge's wording round-trips into the
// forecaster's next prompt.
func formatFeedbackBlock(feedback []string) string {
	if len(feedback) == 0 {
		return NoHistorySentinel
	}
	lines := make([]string, 0, len(feedback))
	for _, f := range feedback {
		lines = append(lines, "- "+f)
	}
	return strings.Join(lines, "\n")
}

func formatPerformanceBlock(entries []PerformanceEntry) string {
	if len(entries) == 0 {
		return NoHistorySentinel
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("- predicted %s, actual %s, error %s",
			formatFloat(e.Prediction), formatFloat(e.Actual), formatFloat(e.Error)))
	}
	return strings.Join(lines, "\n")
}
