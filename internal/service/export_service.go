package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gestion-notas-api/internal/models"
	"github.com/noah-isme/gestion-notas-api/pkg/export"
	applog "github.com/noah-isme/gestion-notas-api/pkg/logger"
)

type courseSummarySource interface {
	CourseSummary(ctx context.Context, courseID string) (*models.CourseGradeSummary, bool, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

type pdfRenderer interface {
	Render(data export.Dataset, doc export.Document) ([]byte, error)
	ContentType() string
}

// Grade sheet columns.
const (
	sheetColCode    = "Codigo"
	sheetColStudent = "Estudiante"
	sheetColGrades  = "Notas"
	sheetColAverage = "Promedio"
	sheetColStatus  = "Estado"
	sheetColResult  = "Resultado"
)

// ExportService renders course grade sheets.
type ExportService struct {
	summaries   courseSummarySource
	csv         csvRenderer
	pdf         pdfRenderer
	institution string
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to
// the default exporters.
func NewExportService(summaries courseSummarySource, institution string, metrics *MetricsService, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		summaries:   summaries,
		csv:         csv,
		pdf:         pdf,
		institution: institution,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CourseGradeSheet renders the per-student standing of a course.
func (s *ExportService) CourseGradeSheet(ctx context.Context, courseID string, format models.ExportFormat) (*models.ExportFile, error) {
	summary, _, err := s.summaries.CourseSummary(ctx, courseID)
	if err != nil {
		return nil, err
	}
	data := gradeSheetDataset(summary)
	stamp := s.now()
	base := fmt.Sprintf("notas_%s_%s", strings.ToLower(summary.CourseCode), stamp.Format("20060102"))

	var file *models.ExportFile
	switch format {
	case models.ExportPDF:
		subtitle := fmt.Sprintf("%s - %s", summary.CourseCode, summary.CourseName)
		if s.institution != "" {
			subtitle = s.institution + " | " + subtitle
		}
		body, err := s.pdf.Render(data, export.Document{
			Title:    "Acta de notas",
			Subtitle: subtitle,
			Widths:   []float64{28, 62, 18, 24, 34, 24},
		})
		if err != nil {
			return nil, internalError(err, "failed to render pdf grade sheet")
		}
		file = &models.ExportFile{Filename: base + ".pdf", ContentType: s.pdf.ContentType(), Data: body}
	default:
		body, err := s.csv.Render(data)
		if err != nil {
			return nil, internalError(err, "failed to render csv grade sheet")
		}
		file = &models.ExportFile{Filename: base + ".csv", ContentType: s.csv.ContentType(), Data: body}
	}

	s.metrics.RecordExport(format)
	applog.WithContext(ctx, s.logger).Info("grade sheet exported",
		zap.String("course_id", courseID),
		zap.String("format", string(format)),
		zap.Int("students", len(summary.Students)),
	)
	return file, nil
}

func gradeSheetDataset(summary *models.CourseGradeSummary) export.Dataset {
	data := export.Dataset{
		Headers: []string{sheetColCode, sheetColStudent, sheetColGrades, sheetColAverage, sheetColStatus, sheetColResult},
		Rows:    make([]map[string]string, 0, len(summary.Students)),
	}
	for _, standing := range summary.Students {
		result := "DESAPROBADO"
		if standing.Passed {
			result = "APROBADO"
		}
		data.Rows = append(data.Rows, map[string]string{
			sheetColCode:    standing.StudentCode,
			sheetColStudent: standing.StudentName,
			sheetColGrades:  strconv.Itoa(standing.GradeCount),
			sheetColAverage: strconv.FormatFloat(standing.Average, 'f', 2, 64),
			sheetColStatus:  string(standing.Status),
			sheetColResult:  result,
		})
	}
	return data
}
