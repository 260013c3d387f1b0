package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "bankfeed/internal/errors"
	"bankfeed/internal/logger"
	"bankfeed/internal/runs"
)

// RunHandler exposes the run queue over HTTP.
type RunHandler struct {
	queue *runs.Queue
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(queue *runs.Queue) *RunHandler {
	return &RunHandler{queue: queue}
}

// TriggerRunRequest is the payload for enqueueing a run.
type TriggerRunRequest struct {
	Type runs.Type `json:"type" binding:"required,oneof=scrape manual-import historical-backfill"`

	// Bank scopes a scrape run to one bank; omit to scrape all.
	Bank string `json:"bank"`

	// Dir overrides the statement directory for import/backfill runs.
	Dir string `json:"dir"`
}

// TriggerRun enqueues a run and returns it immediately; the caller polls
// GetRun for the report.
func (h *RunHandler) TriggerRun(c *gin.Context) {
	var req TriggerRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	run := &runs.Run{Type: req.Type, Bank: req.Bank, Dir: req.Dir}
	if err := h.queue.Enqueue(c.Request.Context(), run); err != nil {
		respondWithError(c, apperrors.Wrap(apperrors.ErrInternalServer, err))
		return
	}
	c.JSON(http.StatusAccepted, run)
}

// GetRun returns one run with its summary, if it finished.
func (h *RunHandler) GetRun(c *gin.Context) {
	run, ok := h.queue.Get(c.Param("id"))
	if !ok {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrNotFound, "No run with that id"))
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListRuns returns all known runs, newest first.
func (h *RunHandler) ListRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": h.queue.List()})
}

// respondWithError writes a consistent JSON error response. An *AppError
// carries its own status and code; anything else is logged and reported as
// a generic internal error.
func respondWithError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Internal != nil {
			logger.Get().Errorw("app error",
				"code", appErr.Code,
				"internal", appErr.Internal.Error(),
				"path", c.Request.URL.Path,
			)
		}
		c.JSON(appErr.StatusCode, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	logger.Get().Errorw("unexpected error",
		"error", err.Error(),
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	)
	c.JSON(apperrors.ErrInternalServer.StatusCode, gin.H{
		"error": gin.H{
			"code":    apperrors.ErrInternalServer.Code,
			"message": apperrors.ErrInternalServer.Message,
		},
	})
}
