package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/LexiconIndonesia/tesauro-crawler/common/messaging"
	"github.com/LexiconIndonesia/tesauro-crawler/common/models"
	"github.com/LexiconIndonesia/tesauro-crawler/common/utils"
	"github.com/LexiconIndonesia/tesauro-crawler/common/work"
	"github.com/LexiconIndonesia/tesauro-crawler/repository"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog/log"
)

const (
	maxRequestBody  = 1 << 16
	defaultRunLimit = 20
	maxRunLimit     = 200
	maxLogRows      = 1000
)

// RunService is the part of tesauro.Service the run endpoints need.
type RunService interface {
	Submit(ctx context.Context, req messaging.RunRequest) (string, error)
	Run(ctx context.Context, runID string) (work.RunState, error)
	Runs(ctx context.Context, limit int) ([]work.RunState, error)
	QueueStats() work.PoolStats
}

// LogStore reads the crawler_logs rows of a run.
type LogStore interface {
	ListCrawlerLogsByRun(ctx context.Context, arg repository.ListCrawlerLogsByRunParams) ([]repository.CrawlerLog, error)
}

type RunHandler struct {
	svc    RunService
	logs   LogStore
	router *chi.Mux
}

// NewRunHandler mounts the run endpoints. The logs endpoint is only
// registered when logs is not nil.
func NewRunHandler(svc RunService, logs LogStore) *RunHandler {
	router := chi.NewRouter()

	h := &RunHandler{
		svc:    svc,
		logs:   logs,
		router: router,
	}

	router.Post("/", h.handleCreateRun)
	router.Get("/", h.handleListRuns)
	router.Get("/queue", h.handleQueueStats)
	router.Get("/{runID}", h.handleGetRun)
	if logs != nil {
		router.Get("/{runID}/logs", h.handleRunLogs)
	}

	return h
}

func (h *RunHandler) Router() *chi.Mux {
	return h.router
}

func (h *RunHandler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		utils.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	req, err := messaging.DecodeRunRequest(body)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	runID, err := h.svc.Submit(r.Context(), req)
	switch {
	case errors.Is(err, work.ErrRunInProgress):
		utils.WriteError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		log.Error().Err(err).Msg("Failed to queue run")
		utils.WriteError(w, http.StatusInternalServerError, "failed to queue run")
		return
	}

	utils.WriteJSON(w, http.StatusAccepted, models.RunCreatedResponse{RunID: runID})
}

func (h *RunHandler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = defaultRunLimit
	}
	limit = min(limit, maxRunLimit)

	runs, err := h.svc.Runs(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list runs")
		utils.WriteError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	utils.WriteJSON(w, http.StatusOK, runs)
}

func (h *RunHandler) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, h.svc.QueueStats())
}

func (h *RunHandler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	state, err := h.svc.Run(r.Context(), runID)
	switch {
	case errors.Is(err, work.ErrRunNotFound):
		utils.WriteError(w, http.StatusNotFound, "run not found")
		return
	case err != nil:
		log.Error().Err(err).Str("runID", runID).Msg("Failed to get run")
		utils.WriteError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	utils.WriteJSON(w, http.StatusOK, state)
}

func (h *RunHandler) handleRunLogs(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	rows, err := h.logs.ListCrawlerLogsByRun(r.Context(), repository.ListCrawlerLogsByRunParams{
		RunID: pgtype.Text{String: runID, Valid: true},
		Limit: maxLogRows,
	})
	if err != nil {
		log.Error().Err(err).Str("runID", runID).Msg("Failed to get run logs")
		utils.WriteError(w, http.StatusInternalServerError, "failed to get run logs")
		return
	}

	resp := make([]models.CrawlerLogResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, models.NewCrawlerLogResponse(row))
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}
