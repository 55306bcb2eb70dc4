package app

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"macrobench/domain/backtest"
	"macrobench/domain/core"
	"macrobench/internal/errors"
	"macrobench/models"
	"macrobench/ports"
)

// RunManager executes backtests in the background and tracks their
// lifecycle. This is single-session tooling: runs live in memory and are
// mirrored to the repository (when one is configured) on a best-effort
// basis.
type RunManager struct {
	service *BacktestService
	repo    ports.RunRepository
	logger  zerolog.Logger

	mu   sync.RWMutex
	runs map[core.RunID]*managedRun
}

type managedRun struct {
	record models.RunRecord
	cancel context.CancelFunc
}

// NewRunManager creates the manager. repo may be nil for memory-only use.
func NewRunManager(service *BacktestService, repo ports.RunRepository, logger zerolog.Logger) *RunManager {
	return &RunManager{
		service: service,
		repo:    repo,
		logger:  logger.With().Str("component", "run_manager").Logger(),
		runs:    make(map[core.RunID]*managedRun),
	}
}

// Start launches a backtest in the background and returns its run ID.
func (m *RunManager) Start(cfg backtest.RunConfig, ticks []backtest.Tick, credentials map[string]string) core.RunID {
	id := core.NewRunID()
	ctx, cancel := context.WithCancel(context.Background())

	record := models.RunRecord{
		ID:        id,
		Status:    models.RunStatusRunning,
		Spec:      cfg,
		TickCount: len(ticks),
		StartedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.runs[id] = &managedRun{record: record, cancel: cancel}
	m.mu.Unlock()

	m.persist(&record)

	go m.execute(ctx, id, cfg, ticks, credentials)
	return id
}

func (m *RunManager) execute(ctx context.Context, id core.RunID, cfg backtest.RunConfig, ticks []backtest.Tick, credentials map[string]string) {
	outcome, err := m.service.Run(ctx, cfg, ticks, credentials)

	now := time.Now().UTC()
	m.mu.Lock()
	run, ok := m.runs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	run.record.CompletedAt = &now
	switch {
	case err == nil:
		// A run with zero ranked models is still "completed"; the verdict
		// lives in the excluded-models report, not in a crash.
		run.record.Status = models.RunStatusCompleted
	case stderrors.Is(err, context.Canceled):
		run.record.Status = models.RunStatusCanceled
		run.record.Error = err.Error()
	default:
		run.record.Status = models.RunStatusFailed
		run.record.Error = err.Error()
	}
	if outcome != nil {
		run.record.TickResults = outcome.TickResults
		run.record.Results = &outcome.Results
	}
	record := run.record
	m.mu.Unlock()

	m.logger.Info().Str("run", id.String()).Str("status", string(record.Status)).Msg("run settled")
	m.persist(&record)
}

// Get returns a run's current record, falling back to the repository for
// runs from earlier sessions.
func (m *RunManager) Get(ctx context.Context, id core.RunID) (*models.RunRecord, error) {
	m.mu.RLock()
	run, ok := m.runs[id]
	if ok {
		record := run.record
		m.mu.RUnlock()
		return &record, nil
	}
	m.mu.RUnlock()

	if m.repo == nil {
		return nil, errors.NotFound("run")
	}
	return m.repo.GetRun(ctx, id)
}

// List returns recent run summaries.
func (m *RunManager) List(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if m.repo != nil {
		return m.repo.ListRuns(ctx, limit)
	}

	m.mu.RLock()
	out := make([]models.RunSummary, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, models.RunSummary{
			ID:          run.record.ID,
			Status:      run.record.Status,
			TickCount:   run.record.TickCount,
			StartedAt:   run.record.StartedAt,
			CompletedAt: run.record.CompletedAt,
		})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Cancel stops issuing new tick iterations for a running backtest. Already
// committed tick results remain valid.
func (m *RunManager) Cancel(id core.RunID) error {
	m.mu.RLock()
	run, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return errors.NotFound("run")
	}
	run.cancel()
	return nil
}

func (m *RunManager) persist(record *models.RunRecord) {
	if m.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.repo.SaveRun(ctx, record); err != nil {
		m.logger.Warn().Err(err).Str("run", record.ID.String()).Msg("failed to persist run")
	}
}
