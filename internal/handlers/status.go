package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reelforge-backend/internal/models"
	"reelforge-backend/internal/store"
)

type StatusHandler struct {
	store store.ProjectStore
}

func NewStatusHandler(st store.ProjectStore) *StatusHandler {
	return &StatusHandler{store: st}
}

// GetStatus is the polling endpoint clients hit during generation. It is a
// pure read: no lock, no transition, just the persisted snapshot.
func (h *StatusHandler) GetStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	project, err := h.store.GetForUser(c.Request.Context(), projectID, userID)
	if err != nil {
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

	c.JSON(http.StatusOK, models.StatusResponse{
		ProjectID:  project.ID.String(),
		Status:     project.Status,
		Progress:   project.Progress,
		EtaSeconds: project.EtaSeconds,
		Error:      project.Error,
		UpdatedAt:  project.UpdatedAt,
	})
}
