package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"reelforge-backend/internal/models"
	"reelforge-backend/internal/store"
)

// downloadURLExpiry is how long a presigned result URL stays valid.
const downloadURLExpiry = time.Hour

type DownloadHandler struct {
	store   store.ProjectStore
	objects ObjectStore
}

func NewDownloadHandler(st store.ProjectStore, objects ObjectStore) *DownloadHandler {
	return &DownloadHandler{store: st, objects: objects}
}

// GetResult returns a time-limited download URL for the finished artifact.
// Anything short of completed is a conflict, not an empty success.
func (h *DownloadHandler) GetResult(c *gin.Context) {
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
	if project.Status != models.StatusCompleted {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "result not ready",
			Message: "project status is " + string(project.Status),
		})
		return
	}

	ref := project.ArtifactRef
	// Ingestion failures leave the provider URL as the artifact reference;
	// serve it directly instead of presigning a key that does not exist.
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		c.JSON(http.StatusOK, models.DownloadResponse{
			ProjectID:   project.ID.String(),
			ArtifactRef: ref,
			DownloadURL: ref,
		})
		return
	}

	url, err := h.objects.PresignedGetURL(c.Request.Context(), ref, downloadURLExpiry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to sign download url",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, models.DownloadResponse{
		ProjectID:   project.ID.String(),
		ArtifactRef: ref,
		DownloadURL: url,
		ExpiresIn:   int(downloadURLExpiry.Seconds()),
	})
}
