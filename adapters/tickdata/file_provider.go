package tickdata

import (
	"context"
	"encoding/json"
	"os"

	"macrobench/domain/backtest"
	"macrobench/internal/errors"
)

// FileProvider loads a validated tick sequence from a JSON document. The
// document is the output of upstream data verification; the provider only
// re-checks the invariants the engine depends on.
type FileProvider struct {
	path string
}

// NewFileProvider creates a provider reading from path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Ticks reads, parses and validates the tick sequence.
func (p *FileProvider) Ticks(ctx context.Context) ([]backtest.Tick, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read ticks file %s", p.path)
	}
	return Parse(data)
}

// Parse decodes a tick document from memory and validates it.
func Parse(data []byte) ([]backtest.Tick, error) {
	var doc struct {
		Ticks []backtest.Tick `json:"ticks"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse tick document")
	}
	if err := Validate(doc.Ticks); err != nil {
		return nil, err
	}
	return doc.Ticks, nil
}

// Validate enforces the sequence invariants the simulation loop assumes:
// at least two ticks, ascending dates.
func Validate(ticks []backtest.Tick) error {
	if len(ticks) < 2 {
		return errors.PreconditionFailed("tick sequence needs at least two ticks")
	}
	for i := 1; i < len(ticks); i++ {
		if !ticks[i].Date.After(ticks[i-1].Date) {
			return errors.PreconditionFailed("tick dates must be strictly ascending")
		}
	}
	return nil
}
