package handlers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"reelforge-backend/internal/lifecycle"
	"reelforge-backend/internal/models"
	"reelforge-backend/internal/storage"
	"reelforge-backend/internal/store"
)

// maxUploadBytes caps a single asset upload at 100 MiB.
const maxUploadBytes = 100 << 20

type UploadHandler struct {
	store   store.ProjectStore
	objects ObjectStore
	locks   *store.KeyedLock
}

func NewUploadHandler(st store.ProjectStore, objects ObjectStore, locks *store.KeyedLock) *UploadHandler {
	return &UploadHandler{store: st, objects: objects, locks: locks}
}

var uploadKinds = map[string]struct {
	contentTypes []string
	fallbackType string
}{
	"sample":    {contentTypes: []string{"video/"}, fallbackType: "video/mp4"},
	"character": {contentTypes: []string{"image/"}, fallbackType: "image/png"},
	"audio":     {contentTypes: []string{"audio/"}, fallbackType: "audio/mpeg"},
}

// Upload stores one source asset (sample video, character image or audio
// track) and moves the project into uploading. Re-uploading a kind before
// analysis replaces the earlier asset.
func (h *UploadHandler) Upload(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	kind := c.Param("kind")
	rules, ok := uploadKinds[kind]
	if !ok {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "upload kind must be one of sample, character, audio",
		})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "missing file field"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "file too large"})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = rules.fallbackType
	}
	accepted := false
	for _, prefix := range rules.contentTypes {
		if strings.HasPrefix(contentType, prefix) {
			accepted = true
			break
		}
	}
	if !accepted {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "unsupported content type for " + kind,
			Message: contentType,
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "failed to open upload"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "failed to read upload"})
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

	filename := kind + filepath.Ext(fileHeader.Filename)
	key := storage.ObjectKey(userID, projectID, kind, filename)
	ref, err := h.objects.Upload(c.Request.Context(), key, data, contentType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to store upload",
			Message: err.Error(),
		})
		return
	}

	inputs := models.InputRefs{}
	switch kind {
	case "sample":
		inputs.SampleRef = ref
	case "character":
		inputs.CharacterRef = ref
	case "audio":
		inputs.AudioRef = ref
	}

	next, err := lifecycle.Transition(*project, lifecycle.EventUploadStarted, lifecycle.Payload{
		Inputs: &inputs,
	})
	if err != nil {
		var invalid *lifecycle.InvalidTransitionError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "project does not accept uploads in its current state",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to record upload",
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

	c.JSON(http.StatusOK, models.UploadResponse{
		ProjectID: next.ID.String(),
		Ref:       ref,
		Size:      fileHeader.Size,
		Status:    next.Status,
	})
}
