package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/ieltsmock-backend/internal/response"
	"github.com/stemsi/ieltsmock-backend/internal/service"
)

// MediaHandler handles admin media uploads: listening audio and the
// source files of variants.
type MediaHandler struct {
	mediaService *service.MediaService
}

// NewMediaHandler creates a new MediaHandler.
func NewMediaHandler(mediaService *service.MediaService) *MediaHandler {
	return &MediaHandler{mediaService: mediaService}
}

// UploadMedia godoc
// POST /api/v1/admin/media/upload?kind=audio|document
// Uploads a file and returns its URL.
func (h *MediaHandler) UploadMedia(c *gin.Context) {
	kind := service.MediaKind(c.DefaultQuery("kind", string(service.MediaAudio)))
	if kind != service.MediaAudio && kind != service.MediaDocument {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"kind": "kind must be one of audio, document"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	url, err := h.mediaService.SaveUpload(kind, file, header)
	if err != nil {
		failUpload(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"url": url})
}
