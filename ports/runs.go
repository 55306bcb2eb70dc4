package ports

import (
	"context"

	"macrobench/domain/core"
	"macrobench/models"
)

// RunRepository persists finished backtest runs for later inspection.
// Persistence is best effort; the engine's correctness never depends on it.
type RunRepository interface {
	SaveRun(ctx context.Context, run *models.RunRecord) error
	GetRun(ctx context.Context, id core.RunID) (*models.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error)
}
