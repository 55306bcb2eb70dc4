package ui

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"macrobench/adapters/excel"
	"macrobench/adapters/tickdata"
	"macrobench/domain/backtest"
	"macrobench/domain/core"
	"macrobench/internal/errors"
	"macrobench/models"
)

// startRunRequest is the JSON body for POST /api/runs. Ticks are supplied
// inline; the setup layer owning data verification lives outside this
// service.
type startRunRequest struct {
	Forecasters      []string        `json:"forecasters"`
	Judge            string          `json:"judge"`
	ForecastTemplate string          `json:"forecast_template,omitempty"`
	JudgeTemplate    string          `json:"judge_template,omitempty"`
	FeedbackLimit    *int            `json:"feedback_limit,omitempty"`
	MaxPredictions   int             `json:"max_predictions,omitempty"`
	Ticks            []backtest.Tick `json:"ticks"`
}

func (req *startRunRequest) runConfig() (backtest.RunConfig, error) {
	forecasters := make([]backtest.ForecasterID, 0, len(req.Forecasters))
	for _, raw := range req.Forecasters {
		id, err := backtest.ParseForecasterID(raw)
		if err != nil {
			return backtest.RunConfig{}, errors.PreconditionFailed(err.Error())
		}
		forecasters = append(forecasters, id)
	}
	judge, err := backtest.ParseForecasterID(req.Judge)
	if err != nil {
		return backtest.RunConfig{}, errors.PreconditionFailed(err.Error())
	}

	feedbackLimit := 3
	if req.FeedbackLimit != nil {
		feedbackLimit = *req.FeedbackLimit
	}
	maxPredictions := req.MaxPredictions
	if maxPredictions == 0 {
		maxPredictions = 10
	}

	return backtest.RunConfig{
		Forecasters:      forecasters,
		Judge:            judge,
		ForecastTemplate: req.ForecastTemplate,
		JudgeTemplate:    req.JudgeTemplate,
		FeedbackLimit:    feedbackLimit,
		MaxPredictions:   maxPredictions,
	}, nil
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.PreconditionFailed("invalid JSON body: "+err.Error()))
		return
	}
	cfg, err := req.runConfig()
	if err != nil {
		respondError(w, err)
		return
	}
	if err := tickdata.Validate(req.Ticks); err != nil {
		respondError(w, err)
		return
	}

	id := s.manager.Start(cfg, req.Ticks, s.credentials)
	respondJSON(w, http.StatusAccepted, map[string]string{"run_id": id.String()})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.manager.List(r.Context(), 50)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.loadRun(r)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseRunID(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, errors.PreconditionFailed(err.Error()))
		return
	}
	if err := s.manager.Cancel(id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "canceling"})
}

func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	run, err := s.loadRun(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if run.Results == nil {
		respondError(w, errors.PreconditionFailed("run has no results yet"))
		return
	}

	md := backtest.MarkdownReport(run.ID.String(), *run.Results, run.TickCount)
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags | mdhtml.CompletePage})
	html := markdown.ToHTML([]byte(md), p, renderer)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(html)
}

func (s *Server) handleRunExport(w http.ResponseWriter, r *http.Request) {
	run, err := s.loadRun(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if run.Results == nil {
		respondError(w, errors.PreconditionFailed("run has no results yet"))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "backtest-"+run.ID.String()+".xlsx"))
	if err := excel.Export(w, *run.Results); err != nil {
		s.logger.Error().Err(err).Msg("excel export failed")
	}
}

func (s *Server) loadRun(r *http.Request) (*models.RunRecord, error) {
	id, err := core.ParseRunID(chi.URLParam(r, "runID"))
	if err != nil {
		return nil, errors.PreconditionFailed(err.Error())
	}
	return s.manager.Get(r.Context(), id)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.CodeNotFound:
		status = http.StatusNotFound
	case errors.CodePreconditionFailed, errors.CodeConfigInvalid:
		status = http.StatusBadRequest
	}
	respondJSON(w, status, map[string]string{"error": err.Error(), "code": errors.GetCode(err)})
}
