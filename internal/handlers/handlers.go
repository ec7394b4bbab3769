// Package handlers wires the HTTP surface. Handlers validate and route;
// project state only changes through lifecycle transitions, and anything
// long-running is handed to the orchestrator.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"reelforge-backend/internal/middleware"
	"reelforge-backend/internal/models"
)

// ObjectStore is the slice of the storage gateway handlers need.
// Implemented by storage.R2Store.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// currentUserID pulls the authenticated user id set by the auth middleware.
// A false return means the error response has already been written.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr, exists := c.Get(middleware.UserIDKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr.(string))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid user id"})
		return uuid.Nil, false
	}
	return userID, true
}

// projectIDParam parses the project_id path parameter. A false return means
// the error response has already been written.
func projectIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("project_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid project id"})
		return uuid.Nil, false
	}
	return id, true
}

func projectResponse(p *models.Project) models.ProjectResponse {
	return models.ProjectResponse{
		ID:          p.ID.String(),
		Status:      p.Status,
		Inputs:      p.Inputs,
		Analysis:    p.Analysis,
		Plan:        p.Plan,
		ChatLog:     p.ChatLog,
		Progress:    p.Progress,
		EtaSeconds:  p.EtaSeconds,
		ArtifactRef: p.ArtifactRef,
		Error:       p.Error,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
