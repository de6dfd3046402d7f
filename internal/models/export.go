package models

import (
	"fmt"
	"strings"

	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
)

// ExportFormat is the rendering of a downloadable grade sheet.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ParseExportFormat converts a query value into an ExportFormat. Empty means CSV.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ExportCSV:
		return ExportCSV, nil
	case ExportPDF:
		return ExportPDF, nil
	}
	return "", appErrors.Clone(appErrors.ErrInvalidEnum, fmt.Sprintf("unknown export format %q", raw))
}

// ExportFile is a rendered document ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}
