package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reelforge-backend/internal/lifecycle"
	"reelforge-backend/internal/models"
	"reelforge-backend/internal/planchat"
	"reelforge-backend/internal/store"
)

type ChatHandler struct {
	store   store.ProjectStore
	mutator *planchat.Mutator
	locks   *store.KeyedLock
}

func NewChatHandler(st store.ProjectStore, mutator *planchat.Mutator, locks *store.KeyedLock) *ChatHandler {
	return &ChatHandler{store: st, mutator: mutator, locks: locks}
}

// Chat applies one natural-language edit instruction to the plan. The chat
// turn is recorded whether or not the edit changed anything; a rejected
// edit keeps the existing plan.
func (h *ChatHandler) Chat(c *gin.Context) {
	if h.mutator == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "plan chat is not configured"})
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "message is required"})
		return
	}

	unlock := h.locks.Lock(projectID)
	defer unlock()

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
	if project.Status != models.StatusPlanned {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error: "plan can only be edited while the project is planned",
		})
		return
	}

	result, err := h.mutator.Mutate(c.Request.Context(), project.Plan, req.Message, project.ChatLog)
	if err != nil {
		var mutErr *planchat.MutationError
		if errors.As(err, &mutErr) {
			// Record the rejected turn so the conversation history is
			// complete, then report the rejection.
			turn := &models.ChatTurn{
				Message:  req.Message,
				Response: "The requested edit could not be applied; the plan is unchanged.",
				Applied:  false,
			}
			next, trErr := lifecycle.Transition(*project, lifecycle.EventPlanEdited, lifecycle.Payload{ChatTurn: turn})
			if trErr == nil {
				_ = h.store.Save(c.Request.Context(), &next)
			}
			c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
				Error:   "plan edit rejected",
				Message: mutErr.Reason,
			})
			return
		}
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "plan edit failed",
			Message: err.Error(),
		})
		return
	}

	payload := lifecycle.Payload{
		ChatTurn: &models.ChatTurn{
			Message:  req.Message,
			Response: result.Reply,
			Applied:  result.Applied,
		},
	}
	if result.Applied {
		payload.Plan = result.Plan
	}
	next, err := lifecycle.Transition(*project, lifecycle.EventPlanEdited, payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to record plan edit",
			Message: err.Error(),
		})
		return
	}
	if err := h.store.Save(c.Request.Context(), &next); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to save project",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, models.ChatResponse{
		ProjectID: next.ID.String(),
		Applied:   result.Applied,
		Response:  result.Reply,
		Plan:      next.Plan,
	})
}
