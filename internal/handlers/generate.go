package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reelforge-backend/internal/models"
	"reelforge-backend/internal/orchestrator"
	"reelforge-backend/internal/providers"
	"reelforge-backend/internal/store"
)

type GenerateHandler struct {
	store store.ProjectStore
	orch  *orchestrator.Orchestrator
}

func NewGenerateHandler(st store.ProjectStore, orch *orchestrator.Orchestrator) *GenerateHandler {
	return &GenerateHandler{store: st, orch: orch}
}

// Generate submits the current plan to a provider and starts background
// supervision. The response carries the remote job id; progress is read
// via the status endpoint.
func (h *GenerateHandler) Generate(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	var req models.GenerateRequest
	// The body is optional; empty means the configured fallback order.
	_ = c.ShouldBindJSON(&req)

	// Ownership check before touching the orchestrator.
	if _, err := h.store.GetForUser(c.Request.Context(), projectID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "project not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to load project",
			Message: err.Error(),
		})
		return
	}

	project, err := h.orch.StartGeneration(c.Request.Context(), projectID, req.Provider)
	if err != nil {
		var preErr *orchestrator.PreconditionError
		var subErr *providers.SubmissionError
		switch {
		case errors.Is(err, orchestrator.ErrJobAlreadyActive):
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error: "a generation job is already active for this project",
			})
		case errors.As(err, &preErr):
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "project is not ready to generate",
				Message: err.Error(),
			})
		case errors.As(err, &subErr):
			c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
				Error:   "provider rejected the plan",
				Message: err.Error(),
			})
		default:
			c.JSON(http.StatusBadGateway, models.ErrorResponse{
				Error:   "failed to start generation",
				Message: err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, models.GenerateResponse{
		ProjectID: project.ID.String(),
		Status:    project.Status,
		Provider:  project.ActiveJob.Provider,
		JobID:     project.ActiveJob.JobID,
	})
}
