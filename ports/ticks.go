package ports

import (
	"context"

	"macrobench/domain/backtest"
)

// TickProvider supplies the ordered tick sequence for a run: already
// validated, ascending by date, with the primary value nullable only where
// ground truth is genuinely missing.
type TickProvider interface {
	Ticks(ctx context.Context) ([]backtest.Tick, error)
}
