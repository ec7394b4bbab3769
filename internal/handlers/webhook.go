package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"reelforge-backend/internal/models"
	"reelforge-backend/internal/orchestrator"
	"reelforge-backend/internal/store"
)

type WebhookHandler struct {
	store store.ProjectStore
	orch  *orchestrator.Orchestrator
	token string
}

func NewWebhookHandler(st store.ProjectStore, orch *orchestrator.Orchestrator, token string) *WebhookHandler {
	return &WebhookHandler{store: st, orch: orch, token: token}
}

type generationWebhookEvent struct {
	Provider string `json:"provider"`
	JobID    string `json:"job_id"`
	Status   string `json:"status,omitempty"`
}

// HandleGeneration receives provider completion callbacks. The payload is
// only a hint: it wakes the supervisor, which then polls the provider for
// the authoritative state. Unknown jobs are acknowledged so providers do
// not retry forever.
func (h *WebhookHandler) HandleGeneration(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "missing authorization token"})
		return
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if h.token == "" || token != h.token {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "invalid authorization token"})
		return
	}

	var event generationWebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid webhook payload"})
		return
	}
	if event.Provider == "" || event.JobID == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "provider and job_id are required"})
		return
	}

	project, err := h.store.FindByJobID(c.Request.Context(), event.Provider, event.JobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to resolve job",
			Message: err.Error(),
		})
		return
	}

	h.orch.Poke(project.ID)
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}
