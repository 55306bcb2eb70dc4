package config

import (
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"macrobench/domain/backtest"
	"macrobench/internal/errors"
)

// defaultFeedbackLimit applies when a run spec omits feedback_limit. An
// explicit 0 disables history lookback entirely.
const defaultFeedbackLimit = 3

// RunSpec is the YAML-facing description of one backtest run.
type RunSpec struct {
	Forecasters      []string `yaml:"forecasters" validate:"required,min=1"`
	Judge            string   `yaml:"judge" validate:"required"`
	ForecastTemplate string   `yaml:"forecast_template"`
	JudgeTemplate    string   `yaml:"judge_template"`
	FeedbackLimit    *int     `yaml:"feedback_limit" validate:"omitempty,min=0"`
	MaxPredictions   int      `yaml:"max_predictions" default:"10" validate:"min=1"`
	SkipPredicted    bool     `yaml:"skip_predicted"`
	TicksFile        string   `yaml:"ticks_file"`
}

// LoadRunSpec reads, defaults and validates a run spec file.
func LoadRunSpec(path string) (*RunSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read run spec %s", path)
	}
	return ParseRunSpec(data)
}

// ParseRunSpec parses run spec YAML from memory.
func ParseRunSpec(data []byte) (*RunSpec, error) {
	spec := &RunSpec{}
	if err := yaml.Unmarshal(data, spec); err != nil {
		return nil, errors.Wrap(err, "failed to parse run spec")
	}
	if err := defaults.Set(spec); err != nil {
		return nil, errors.Wrap(err, "failed to apply run spec defaults")
	}
	if err := validator.New().Struct(spec); err != nil {
		return nil, errors.Wrap(err, "run spec validation failed")
	}
	return spec, nil
}

// RunConfig converts the spec into the engine-facing configuration,
// validating every compound model key.
func (s *RunSpec) RunConfig() (backtest.RunConfig, error) {
	forecasters := make([]backtest.ForecasterID, 0, len(s.Forecasters))
	for _, raw := range s.Forecasters {
		id, err := backtest.ParseForecasterID(raw)
		if err != nil {
			return backtest.RunConfig{}, errors.Wrap(err, "invalid forecaster")
		}
		forecasters = append(forecasters, id)
	}
	judge, err := backtest.ParseForecasterID(s.Judge)
	if err != nil {
		return backtest.RunConfig{}, errors.Wrap(err, "invalid judge")
	}

	feedbackLimit := defaultFeedbackLimit
	if s.FeedbackLimit != nil {
		feedbackLimit = *s.FeedbackLimit
	}

	return backtest.RunConfig{
		Forecasters:      forecasters,
		Judge:            judge,
		ForecastTemplate: s.ForecastTemplate,
		JudgeTemplate:    s.JudgeTemplate,
		FeedbackLimit:    feedbackLimit,
		MaxPredictions:   s.MaxPredictions,
		SkipPredicted:    s.SkipPredicted,
	}, nil
}
