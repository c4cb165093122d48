package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mfeldman486/resume-harvester/internal/progress/sinks"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 100
)

// RunSource serves aggregated run counters. The progress snapshot sink is the
// production implementation.
type RunSource interface {
	Runs() []sinks.RunProgress
	Run(id string) (sinks.RunProgress, bool)
}

// ProgressHandler exposes read-only run progress endpoints.
type ProgressHandler struct {
	source RunSource
	logger *zap.Logger
}

// NewProgressHandler wires the run source and logger.
func NewProgressHandler(source RunSource, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{source: source, logger: logger}
}

// ListRuns handles GET /progress?limit=. It returns {"runs": [...]} newest
// first, 400 for an invalid limit, or 503 when progress tracking is disabled.
func (h *ProgressHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "progress tracking disabled", h.logger)
		return
	}
	limit, err := parseLimit(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), h.logger)
		return
	}
	runs := h.source.Runs()
	if len(runs) > limit {
		runs = runs[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs}, h.logger)
}

// GetRun handles GET /progress/{run_id}. It returns {"run": {...}} on success,
// 400 for malformed IDs, 404 for unknown or evicted runs, or 503 when progress
// tracking is disabled.
func (h *ProgressHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "progress tracking disabled", h.logger)
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), h.logger)
		return
	}
	run, ok := h.source.Run(runID.String())
	if !ok {
		writeError(w, http.StatusNotFound, "run not found", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run}, h.logger)
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "run_id"))
	if raw == "" {
		return uuid.UUID{}, errors.New("run_id is required")
	}
	runID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid run_id")
	}
	return runID, nil
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	limStr := r.URL.Query().Get("limit")
	if limStr == "" {
		return def, nil
	}
	val, err := strconv.Atoi(limStr)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	if val > maxLimit {
		val = maxLimit
	}
	return val, nil
}
