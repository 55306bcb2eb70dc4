package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrobench/internal/errors"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "bare object",
			raw:  `{"prediction": 3.5}`,
			want: `{"prediction": 3.5}`,
		},
		{
			name: "markdown fence",
			raw:  "Here you go:\n```json\n{\"prediction\": 3.5}\n```\n",
			want: `{"prediction": 3.5}`,
		},
		{
			name: "surrounding chatter",
			raw:  `Sure! My forecast is {"prediction": 3.5, "confidence": 0.8} based on the data.`,
			want: `{"prediction": 3.5, "confidence": 0.8}`,
		},
		{
			name: "nested object",
			raw:  `{"outer": {"inner": 1}}`,
			want: `{"outer": {"inner": 1}}`,
		},
		{
			name: "braces inside strings",
			raw:  `{"feedback": "use {curly} braces \" and escapes"}`,
			want: `{"feedback": "use {curly} braces \" and escapes"}`,
		},
		{
			name: "skips invalid candidate",
			raw:  `{not json at all} but then {"a": 1}`,
			want: `{"a": 1}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestExtractJSONObjectFailure(t *testing.T) {
	for _, raw := range []string{
		"",
		"no json here",
		"{\"unterminated\": ",
		"[1, 2, 3]",
	} {
		_, err := ExtractJSONObject(raw)
		require.Error(t, err, "input %q", raw)
		assert.Equal(t, errors.CodeMalformedOutput, errors.GetCode(err))
	}
}
