package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrobench/domain/backtest"
)

func TestParseRunSpecDefaults(t *testing.T) {
	spec, err := ParseRunSpec([]byte(`
forecasters:
  - openai::gpt-4o
  - anthropic::claude-sonnet
judge: openai::gpt-4o
`))
	require.NoError(t, err)

	assert.Equal(t, 10, spec.MaxPredictions)
	assert.Nil(t, spec.FeedbackLimit)

	cfg, err := spec.RunConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.FeedbackLimit)
	assert.Equal(t, backtest.ForecasterID("openai::gpt-4o"), cfg.Judge)
	require.Len(t, cfg.Forecasters, 2)
}

func TestParseRunSpecExplicitZeroFeedback(t *testing.T) {
	spec, err := ParseRunSpec([]byte(`
forecasters: [openai::gpt-4o]
judge: openai::gpt-4o
feedback_limit: 0
max_predictions: 25
`))
	require.NoError(t, err)

	cfg, err := spec.RunConfig()
	require.NoError(t, err)
	// An explicit zero disables history; it must not fall back to the
	// default.
	assert.Equal(t, 0, cfg.FeedbackLimit)
	assert.Equal(t, 25, cfg.MaxPredictions)
}

func TestParseRunSpecValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing judge", "forecasters: [openai::gpt-4o]"},
		{"no forecasters", "judge: openai::gpt-4o"},
		{"negative feedback", "forecasters: [openai::gpt-4o]\njudge: openai::gpt-4o\nfeedback_limit: -1"},
		{"negative predictions", "forecasters: [openai::gpt-4o]\njudge: openai::gpt-4o\nmax_predictions: -5"},
		{"bad yaml", "forecasters: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRunSpec([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestRunSpecRejectsMalformedModelKeys(t *testing.T) {
	spec, err := ParseRunSpec([]byte(`
forecasters: [gpt-4o]
judge: openai::gpt-4o
`))
	require.NoError(t, err)

	_, err = spec.RunConfig()
	assert.Error(t, err)
}

func TestLoadRunSpec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
forecasters: [openai::gpt-4o]
judge: anthropic::claude-sonnet
ticks_file: ./ticks.json
`), 0o644))

	spec, err := LoadRunSpec(path)
	require.NoError(t, err)
	assert.Equal(t, "./ticks.json", spec.TicksFile)

	_, err = LoadRunSpec(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
