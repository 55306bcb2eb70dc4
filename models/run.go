package models

import (
	"time"

	"macrobench/domain/backtest"
	"macrobench/domain/core"
)

// RunStatus tracks a backtest run through its lifecycle.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// RunRecord is the stored shape of one backtest run: its spec, the committed
// tick results, and the final report.
type RunRecord struct {
	ID          core.RunID                `json:"id"`
	Status      RunStatus                 `json:"status"`
	Spec        backtest.RunConfig        `json:"spec"`
	TickCount   int                       `json:"tick_count"`
	TickResults []backtest.TickResult     `json:"tick_results,omitempty"`
	Results     *backtest.BacktestResults `json:"results,omitempty"`
	Error       string                    `json:"error,omitempty"`
	StartedAt   time.Time                 `json:"started_at"`
	CompletedAt *time.Time                `json:"completed_at,omitempty"`
}

// RunSummary is the listing shape: headline fields without tick payloads.
type RunSummary struct {
	ID          core.RunID `json:"id"`
	Status      RunStatus  `json:"status"`
	TickCount   int        `json:"tick_count"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
