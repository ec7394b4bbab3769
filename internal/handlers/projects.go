package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"reelforge-backend/internal/models"
	"reelforge-backend/internal/store"
)

type ProjectsHandler struct {
	store   store.ProjectStore
	objects ObjectStore
}

func NewProjectsHandler(st store.ProjectStore, objects ObjectStore) *ProjectsHandler {
	return &ProjectsHandler{store: st, objects: objects}
}

func (h *ProjectsHandler) CreateProject(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req models.CreateProjectRequest
	// The body is optional; an empty request creates an unnamed project.
	_ = c.ShouldBindJSON(&req)

	now := time.Now().UTC()
	project := &models.Project{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    models.StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.Create(c.Request.Context(), project); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to create project",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, projectResponse(project))
}

func (h *ProjectsHandler) ListProjects(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	projects, err := h.store.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to list projects",
			Message: err.Error(),
		})
		return
	}

	summaries := make([]models.ProjectSummary, len(projects))
	for i, p := range projects {
		summaries[i] = models.ProjectSummary{
			ID:        p.ID.String(),
			Status:    p.Status,
			Progress:  p.Progress,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		}
	}
	c.JSON(http.StatusOK, models.ProjectListResponse{Projects: summaries})
}

func (h *ProjectsHandler) GetProject(c *gin.Context) {
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

	c.JSON(http.StatusOK, projectResponse(project))
}

func (h *ProjectsHandler) DeleteProject(c *gin.Context) {
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
	if project.Status == models.StatusGenerating {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error: "cannot delete a project with an active generation job",
		})
		return
	}

	if err := h.store.Delete(c.Request.Context(), projectID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to delete project",
			Message: err.Error(),
		})
		return
	}

	h.deleteAssets(c.Request.Context(), project)
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// deleteAssets removes the project's stored objects. Best effort: the row is
// already gone, so a leftover object is an orphan, not an inconsistency.
func (h *ProjectsHandler) deleteAssets(ctx context.Context, p *models.Project) {
	if h.objects == nil {
		return
	}
	for _, key := range []string{p.Inputs.SampleRef, p.Inputs.CharacterRef, p.Inputs.AudioRef, p.ArtifactRef} {
		if key == "" {
			continue
		}
		_ = h.objects.Delete(ctx, key)
	}
}
