package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reelforge-backend/internal/analysis"
	"reelforge-backend/internal/lifecycle"
	"reelforge-backend/internal/models"
	"reelforge-backend/internal/store"
)

type AnalyzeHandler struct {
	store    store.ProjectStore
	analyzer *analysis.Analyzer
	locks    *store.KeyedLock
}

func NewAnalyzeHandler(st store.ProjectStore, analyzer *analysis.Analyzer, locks *store.KeyedLock) *AnalyzeHandler {
	return &AnalyzeHandler{store: st, analyzer: analyzer, locks: locks}
}

// Analyze runs sample analysis and installs the initial generation plan.
// Runs synchronously on the request path; a model failure leaves the
// project in analyzing so the caller can retry the same request.
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	if h.analyzer == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "analysis is not configured"})
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
	if project.Inputs.SampleRef == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "a sample upload is required before analysis",
		})
		return
	}

	started, err := lifecycle.Transition(*project, lifecycle.EventAnalysisStarted, lifecycle.Payload{})
	if err != nil {
		var invalid *lifecycle.InvalidTransitionError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "project cannot be analyzed in its current state",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to start analysis",
			Message: err.Error(),
		})
		return
	}
	if err := h.store.Save(c.Request.Context(), &started); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to save project",
			Message: err.Error(),
		})
		return
	}

	result, plan, err := h.analyzer.Analyze(c.Request.Context(), started.Inputs)
	if err != nil {
		// The project stays analyzing; the same call can be retried.
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "analysis failed",
			Message: err.Error(),
		})
		return
	}

	planned, err := lifecycle.Transition(started, lifecycle.EventAnalysisCompleted, lifecycle.Payload{
		Analysis: result,
		Plan:     plan,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to record analysis",
			Message: err.Error(),
		})
		return
	}
	if err := h.store.Save(c.Request.Context(), &planned); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to save project",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, models.AnalyzeResponse{
		ProjectID: planned.ID.String(),
		Status:    planned.Status,
		Analysis:  planned.Analysis,
		Plan:      planned.Plan,
	})
}
