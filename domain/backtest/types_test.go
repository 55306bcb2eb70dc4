package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseForecasterID(t *testing.T) {
	id, err := ParseForecasterID("openai::gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "openai", id.Provider())
	assert.Equal(t, "gpt-4o", id.Model())

	// Model segments may themselves contain separators.
	id, err = ParseForecasterID("openrouter::meta/llama::ft")
	require.NoError(t, err)
	assert.Equal(t, "openrouter", id.Provider())
	assert.Equal(t, "meta/llama::ft", id.Model())

	for _, raw := range []string{"gpt-4o", "::gpt-4o", "openai::", "::", ""} {
		_, err := ParseForecasterID(raw)
		assert.Error(t, err, "expected %q to be rejected", raw)
	}
}

func TestModelRecordFailIsSticky(t *testing.T) {
	rec := &ModelRecord{ID: "openai::gpt-4o", State: ModelActive}

	rec.Fail("first failure")
	rec.Fail("second failure")

	assert.Equal(t, ModelFailed, rec.State)
	assert.Equal(t, "first failure", rec.FailureMsg)
}

func TestModelRecordRecentHistory(t *testing.T) {
	rec := &ModelRecord{Feedback: []string{"a", "b", "c", "d"}}

	assert.Equal(t, []string{"b", "c", "d"}, rec.RecentFeedback(3))
	assert.Equal(t, []string{"a", "b", "c", "d"}, rec.RecentFeedback(10))
	assert.Nil(t, rec.RecentFeedback(0))

	rec.Performance = []PerformanceEntry{{Prediction: 1}, {Prediction: 2}}
	recent := rec.RecentPerformance(1)
	require.Len(t, recent, 1)
	assert.Equal(t, 2.0, recent[0].Prediction)
}

func TestRunStateOrderingAndExclusion(t *testing.T) {
	state := NewRunState([]ForecasterID{"openai::a", "anthropic::b", "openai::a", "openai::c"})

	// Duplicates collapse, input order survives.
	assert.Equal(t, []ForecasterID{"openai::a", "anthropic::b", "openai::c"}, state.Forecasters())
	assert.Equal(t, []ForecasterID{"openai::a", "anthropic::b", "openai::c"}, state.Active())

	state.Record("anthropic::b").Fail("auth rejected")

	assert.Equal(t, []ForecasterID{"openai::a", "openai::c"}, state.Active())
	assert.Equal(t, map[ForecasterID]string{"anthropic::b": "auth rejected"}, state.PermanentErrors())

	// Configuration is immutable; failure only narrows the active set.
	assert.Equal(t, []ForecasterID{"openai::a", "anthropic::b", "openai::c"}, state.Forecasters())
}
