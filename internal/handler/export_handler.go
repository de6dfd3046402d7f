package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gestion-notas-api/internal/models"
	"github.com/noah-isme/gestion-notas-api/pkg/response"
)

type exportService interface {
	CourseGradeSheet(ctx context.Context, courseID string, format models.ExportFormat) (*models.ExportFile, error)
}

// ExportHandler streams generated grade sheets.
type ExportHandler struct {
	exports exportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports exportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// CourseGradeSheet godoc
// @Summary Export the grade sheet of a course
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Course ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/export [get]
func (h *ExportHandler) CourseGradeSheet(c *gin.Context) {
	format, err := models.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exports.CourseGradeSheet(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
