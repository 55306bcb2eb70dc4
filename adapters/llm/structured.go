package llm

import (
	"encoding/json"

	"macrobench/internal/errors"
)

// ExtractJSONObject returns the first balanced {...} substring of raw that
// parses as valid JSON. Models wrap their output in markdown fences or
// chatter often enough that strict whole-body parsing is not an option.
func ExtractJSONObject(raw string) (json.RawMessage, error) {
	bytes := []byte(raw)
	for start := 0; start < len(bytes); start++ {
		if bytes[start] != '{' {
			continue
		}
		if end := matchBrace(bytes, start); end > start {
			candidate := bytes[start : end+1]
			if json.Valid(candidate) {
				out := make(json.RawMessage, len(candidate))
				copy(out, candidate)
				return out, nil
			}
		}
	}
	return nil, errors.MalformedOutput("model output contains no parseable JSON object")
}

// matchBrace finds the index of the brace closing the object opened at
// start, honoring string literals and escapes. Returns -1 when unbalanced.
func matchBrace(b []byte, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(b); i++ {
		c := b[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
