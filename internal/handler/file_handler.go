package handler

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
	"github.com/noah-isme/gestion-notas-api/pkg/response"
)

type blobOpener interface {
	Open(key, category string) (*os.File, error)
}

type linkParser interface {
	Parse(token string) (category, key string, expiresAt time.Time, err error)
}

// FileHandler serves stored photos behind signed, expiring tokens.
type FileHandler struct {
	blobs  blobOpener
	signer linkParser
}

// NewFileHandler constructs FileHandler.
func NewFileHandler(blobs blobOpener, signer linkParser) *FileHandler {
	return &FileHandler{blobs: blobs, signer: signer}
}

// Download godoc
// @Summary Download a stored photo
// @Description The token comes from a photo-url endpoint and expires after the configured TTL.
// @Tags Files
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /files/{token} [get]
func (h *FileHandler) Download(c *gin.Context) {
	category, key, _, err := h.signer.Parse(c.Param("token"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired link"))
		return
	}
	file, err := h.blobs.Open(key, category)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "file not found"))
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat file"))
		return
	}
	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", key))
	c.Header("Cache-Control", "private, max-age=300")
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
