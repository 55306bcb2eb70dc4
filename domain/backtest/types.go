package backtest

import (
	"fmt"
	"strings"
	"time"
)

// ForecasterID is a compound key "provider::model" identifying one connected
// model instance. It stays stable for the lifetime of a run and is used as a
// map key throughout.
type ForecasterID string

// ParseForecasterID validates the "provider::model" shape.
func ParseForecasterID(s string) (ForecasterID, error) {
	provider, model, ok := strings.Cut(s, "::")
	if !ok || strings.TrimSpace(provider) == "" || strings.TrimSpace(model) == "" {
		return "", fmt.Errorf("forecaster ID %q must have the form provider::model", s)
	}
	return ForecasterID(s), nil
}

// Provider returns the provider segment of the compound key.
func (id ForecasterID) Provider() string {
	provider, _, _ := strings.Cut(string(id), "::")
	return provider
}

// Model returns the model segment of the compound key.
func (id ForecasterID) Model() string {
	_, model, _ := strings.Cut(string(id), "::")
	return model
}

func (id ForecasterID) String() string { return string(id) }

// Observation is a single named economic reading. Value is nil when the
// provider has no published figure for the period.
type Observation struct {
	Title string   `json:"title"`
	Value *float64 `json:"value"`
	Unit  string   `json:"unit"`
}

// PeerObservation is a related series reading supplied as context alongside
// the primary observation.
type PeerObservation struct {
	Title        string   `json:"title"`
	Value        *float64 `json:"value"`
	Unit         string   `json:"unit"`
	Relationship string   `json:"relationship"`
}

// Tick is one historical time-step. Ticks arrive pre-validated and sorted
// ascending by date; the engine predicts tick i+1 from tick i.
type Tick struct {
	Date      time.Time         `json:"date"`
	Country   string            `json:"country"`
	Indicator string            `json:"indicator"`
	Primary   Observation       `json:"primary"`
	Peers     []PeerObservation `json:"peers"`
}

// ForecastResult is one forecaster's parsed output for one tick.
type ForecastResult struct {
	Prediction float64 `json:"prediction"`
	Unit       string  `json:"unit"`
	Rationale  string  `json:"rationale"`
	Confidence float64 `json:"confidence"`
}

// JudgeResult is the judge's evaluation of one forecast. Error is trusted as
// returned by the judge model, not recomputed by the engine.
type JudgeResult struct {
	Accuracy float64 `json:"accuracy"`
	Error    float64 `json:"error"`
	Feedback string  `json:"feedback"`
}

// TickResult aggregates one tick's successful forecasts and evaluations.
// Immutable once committed to the run's result list.
type TickResult struct {
	TickIndex   int                            `json:"tick_index"`
	TickData    Tick                           `json:"tick_data"`
	Forecasts   map[ForecasterID]ForecastResult `json:"forecasts"`
	Evaluations map[ForecasterID]JudgeResult    `json:"evaluations"`
}

// PerformanceEntry is one past prediction/actual pair carried into the
// judge's rolling context.
type PerformanceEntry struct {
	Prediction float64 `json:"prediction"`
	Actual     float64 `json:"actual"`
	Error      float64 `json:"error"`
}

// ModelState tracks a forecaster's participation in the run.
type ModelState int

const (
	ModelActive ModelState = iota
	ModelFailed
)

// ModelRecord is the per-forecaster run state: participation, permanent
// failure message, and the rolling history feeding the next tick's prompts.
type ModelRecord struct {
	ID          ForecasterID
	State       ModelState
	FailureMsg  string
	Feedback    []string
	Performance []PerformanceEntry
}

// Fail transitions the record to ModelFailed. The transition is sticky for
// the remainder of the run and the first recorded message wins.
func (r *ModelRecord) Fail(msg string) {
	if r.State == ModelFailed {
		return
	}
	r.State = ModelFailed
	r.FailureMsg = msg
}

// RecentFeedback returns the most recent limit feedback entries.
func (r *ModelRecord) RecentFeedback(limit int) []string {
	return tail(r.Feedback, limit)
}

// RecentPerformance returns the most recent limit performance entries.
func (r *ModelRecord) RecentPerformance(limit int) []PerformanceEntry {
	return tail(r.Performance, limit)
}

func tail[T any](s []T, limit int) []T {
	if limit <= 0 || len(s) == 0 {
		return nil
	}
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}

// RunState owns the per-model records for one run. It is loop-scoped and
// mutated only from the orchestrating flow, so no locking is needed while
// ticks execute sequentially.
type RunState struct {
	order   []ForecasterID
	records map[ForecasterID]*ModelRecord
}

// NewRunState initializes an active record per configured forecaster,
// preserving configuration order.
func NewRunState(forecasters []ForecasterID) *RunState {
	s := &RunState{
		order:   make([]ForecasterID, 0, len(forecasters)),
		records: make(map[ForecasterID]*ModelRecord, len(forecasters)),
	}
	for _, id := range forecasters {
		if _, ok := s.records[id]; ok {
			continue
		}
		s.order = append(s.order, id)
		s.records[id] = &ModelRecord{ID: id, State: ModelActive}
	}
	return s
}

// Forecasters returns every configured forecaster in input order.
func (s *RunState) Forecasters() []ForecasterID { return s.order }

// Active returns the forecasters still participating, in input order.
func (s *RunState) Active() []ForecasterID {
	out := make([]ForecasterID, 0, len(s.order))
	for _, id := range s.order {
		if s.records[id].State == ModelActive {
			out = append(out, id)
		}
	}
	return out
}

// Record returns the per-model record for id, or nil if unknown.
func (s *RunState) Record(id ForecasterID) *ModelRecord { return s.records[id] }

// PermanentErrors collects the failure message of every failed model.
func (s *RunState) PermanentErrors() map[ForecasterID]string {
	out := make(map[ForecasterID]string)
	for _, id := range s.order {
		if r := s.records[id]; r.State == ModelFailed {
			out[id] = r.FailureMsg
		}
	}
	return out
}

// ModelBenchmark is one model's final statistics over the run.
type ModelBenchmark struct {
	Model               ForecasterID `json:"model"`
	CompletionRate      float64      `json:"completion_rate"`
	DirectionalAccuracy float64      `json:"directional_accuracy"`
	RMSE                float64      `json:"rmse"`
	BrierScore          float64      `json:"brier_score"`
	AvgConfidence       float64      `json:"avg_confidence"`
	CompositeScore      float64      `json:"composite_score"`
	Predictions         int          `json:"predictions"`
}

// ExclusionReason explains why a model did not rank.
type ExclusionReason string

const (
	ReasonInsufficientCoverage ExclusionReason = "Insufficient Coverage"
	ReasonFailed               ExclusionReason = "Failed"
)

// ExcludedModel is a benchmark (or minimal stub for models that never
// succeeded) annotated with its exclusion reason.
type ExcludedModel struct {
	ModelBenchmark
	Reason  ExclusionReason `json:"reason"`
	Message string          `json:"message,omitempty"`
}

// OverallSummary averages the ranked models' headline metrics.
type OverallSummary struct {
	CompositeScore      float64 `json:"composite_score"`
	DirectionalAccuracy float64 `json:"directional_accuracy"`
	RMSE                float64 `json:"rmse"`
	AvgConfidence       float64 `json:"avg_confidence"`
}

// BacktestResults is the run's final report. Computed once from the full
// TickResult sequence; never partially recomputed.
type BacktestResults struct {
	Overall        OverallSummary   `json:"overall"`
	TopPerformers  []ModelBenchmark `json:"top_performers"`
	ExcludedModels []ExcludedModel  `json:"excluded_models"`
}

// RunConfig is the engine-facing slice of a run specification.
type RunConfig struct {
	Forecasters      []ForecasterID `json:"forecasters"`
	Judge            ForecasterID   `json:"judge"`
	ForecastTemplate string         `json:"forecast_template"`
	JudgeTemplate    string         `json:"judge_template"`
	FeedbackLimit    int            `json:"feedback_limit"`
	MaxPredictions   int            `json:"max_predictions"`
	// SkipPredicted is honored by setup tooling when assembling the tick
	// sequence; the engine itself does not consult it.
	SkipPredicted bool `json:"skip_predicted"`
}
