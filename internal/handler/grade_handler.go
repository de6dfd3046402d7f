package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gestion-notas-api/internal/middleware"
	"github.com/noah-isme/gestion-notas-api/internal/models"
	"github.com/noah-isme/gestion-notas-api/internal/service"
	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
	"github.com/noah-isme/gestion-notas-api/pkg/response"
)

type gradeService interface {
	Create(ctx context.Context, req service.CreateGradeRequest) (*models.Grade, error)
	BulkCreate(ctx context.Context, req service.BulkCreateGradesRequest) ([]models.Grade, error)
	Update(ctx context.Context, id string, req service.UpdateGradeRequest) (*models.Grade, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.GradeDetail, error)
	List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, *models.Pagination, error)
	AverageForStudent(ctx context.Context, studentID string) (float64, error)
	AverageForCourse(ctx context.Context, courseID string) (float64, error)
	Standing(ctx context.Context, studentID, courseID string) (*models.StudentStanding, error)
	ApprovingGrades(ctx context.Context) ([]models.GradeDetail, error)
	GradesWithMinimum(ctx context.Context, threshold float64) ([]models.GradeDetail, error)
	TopGradesForCourse(ctx context.Context, courseID string, limit int) ([]models.GradeDetail, error)
	EvaluationTypeCounts(ctx context.Context) ([]models.EvaluationTypeCount, bool, error)
	CourseSummary(ctx context.Context, courseID string) (*models.CourseGradeSummary, bool, error)
}

// GradeHandler exposes the grading engine.
type GradeHandler struct {
	grades gradeService
}

// NewGradeHandler constructs handler.
func NewGradeHandler(grades gradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

type averageResponse struct {
	StudentID string  `json:"student_id,omitempty"`
	CourseID  string  `json:"course_id,omitempty"`
	Average   float64 `json:"average"`
}

// List godoc
// @Summary List grades
// @Tags Grades
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param course_id query string false "Filter by course"
// @Param evaluation_type query string false "PARCIAL, FINAL, TAREA, PRACTICA or EXAMEN"
// @Param min_value query number false "Minimum value"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /grades [get]
func (h *GradeHandler) List(c *gin.Context) {
	filter, err := gradeFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.StudentID = c.Query("student_id")
	filter.CourseID = c.Query("course_id")
	h.list(c, filter)
}

// ListForStudent godoc
// @Summary List the grades of a student
// @Tags Grades
// @Produce json
// @Param id path string true "Student ID"
// @Param course_id query string false "Restrict to one course"
// @Param evaluation_type query string false "Evaluation type"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/grades [get]
func (h *GradeHandler) ListForStudent(c *gin.Context) {
	filter, err := gradeFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.StudentID = c.Param("id")
	filter.CourseID = c.Query("course_id")
	h.list(c, filter)
}

// ListForCourse godoc
// @Summary List the grades of a course
// @Tags Grades
// @Produce json
// @Param id path string true "Course ID"
// @Param evaluation_type query string false "Evaluation type"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/grades [get]
func (h *GradeHandler) ListForCourse(c *gin.Context) {
	filter, err := gradeFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.CourseID = c.Param("id")
	h.list(c, filter)
}

func (h *GradeHandler) list(c *gin.Context, filter models.GradeFilter) {
	grades, pagination, err := h.grades.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, grades, pagination)
}

func gradeFilter(c *gin.Context) (models.GradeFilter, error) {
	var filter models.GradeFilter
	if raw := c.Query("evaluation_type"); raw != "" {
		t, err := models.ParseEvaluationType(raw)
		if err != nil {
			return filter, err
		}
		filter.EvaluationType = &t
	}
	minValue, err := queryFloat(c, "min_value")
	if err != nil {
		return filter, err
	}
	filter.MinValue = minValue
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")
	return filter, nil
}

// Get godoc
// @Summary Get grade
// @Tags Grades
// @Produce json
// @Param id path string true "Grade ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grades/{id} [get]
func (h *GradeHandler) Get(c *gin.Context) {
	grade, err := h.grades.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, grade, nil)
}

// Create godoc
// @Summary Record a grade
// @Description Value must lie in [0, 20]; evaluation type defaults to PARCIAL.
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.CreateGradeRequest true "Grade payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grades [post]
func (h *GradeHandler) Create(c *gin.Context) {
	var req service.CreateGradeRequest
	if !bindJSON(c, &req, "invalid grade payload") {
		return
	}
	grade, err := h.grades.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grade)
}

// BulkCreate godoc
// @Summary Record one evaluation for many students
// @Description All rows are stored or none are.
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.BulkCreateGradesRequest true "Bulk payload"
// @Success 201 {object} response.Envelope
// @Router /grades/bulk [post]
func (h *GradeHandler) BulkCreate(c *gin.Context) {
	var req service.BulkCreateGradesRequest
	if !bindJSON(c, &req, "invalid bulk grade payload") {
		return
	}
	grades, err := h.grades.BulkCreate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grades)
}

// Update godoc
// @Summary Update grade
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Grade ID"
// @Param payload body service.UpdateGradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Router /grades/{id} [put]
func (h *GradeHandler) Update(c *gin.Context) {
	var req service.UpdateGradeRequest
	if !bindJSON(c, &req, "invalid grade payload") {
		return
	}
	grade, err := h.grades.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, grade, nil)
}

// Delete godoc
// @Summary Delete grade
// @Tags Grades
// @Param id path string true "Grade ID"
// @Success 204
// @Router /grades/{id} [delete]
func (h *GradeHandler) Delete(c *gin.Context) {
	if err := h.grades.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Approving godoc
// @Summary Grades at or above the passing grade
// @Tags Grades
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /grades/approving [get]
func (h *GradeHandler) Approving(c *gin.Context) {
	grades, err := h.grades.ApprovingGrades(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, grades, nil)
}

// Minimum godoc
// @Summary Grades at or above a threshold
// @Tags Grades
// @Produce json
// @Param value query number true "Threshold"
// @Success 200 {object} response.Envelope
// @Router /grades/minimum [get]
func (h *GradeHandler) Minimum(c *gin.Context) {
	threshold, err := queryFloat(c, "value")
	if err != nil {
		response.Error(c, err)
		return
	}
	if threshold == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "value is required"))
		return
	}
	grades, err := h.grades.GradesWithMinimum(c.Request.Context(), *threshold)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, grades, nil)
}

// EvaluationTypes godoc
// @Summary Grade count per evaluation type
// @Description Served from the statistics cache when warm; meta.cache_hit reports it.
// @Tags Grades
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /grades/evaluation-types [get]
func (h *GradeHandler) EvaluationTypes(c *gin.Context) {
	counts, hit, err := h.grades.EvaluationTypeCounts(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	ok(c, counts, nil)
}

// StudentAverage godoc
// @Summary Overall average of a student
// @Tags Grades
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/average [get]
func (h *GradeHandler) StudentAverage(c *gin.Context) {
	avg, err := h.grades.AverageForStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, averageResponse{StudentID: c.Param("id"), Average: avg}, nil)
}

// Standing godoc
// @Summary Academic standing of a student in a course
// @Tags Grades
// @Produce json
// @Param id path string true "Student ID"
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/courses/{courseId}/standing [get]
func (h *GradeHandler) Standing(c *gin.Context) {
	standing, err := h.grades.Standing(c.Request.Context(), c.Param("id"), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, standing, nil)
}

// CourseAverage godoc
// @Summary Average of every grade in a course
// @Tags Grades
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/average [get]
func (h *GradeHandler) CourseAverage(c *gin.Context) {
	avg, err := h.grades.AverageForCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, averageResponse{CourseID: c.Param("id"), Average: avg}, nil)
}

// CourseSummary godoc
// @Summary Grade statistics of a course
// @Tags Grades
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/summary [get]
func (h *GradeHandler) CourseSummary(c *gin.Context) {
	summary, hit, err := h.grades.CourseSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	ok(c, summary, nil)
}

// TopGrades godoc
// @Summary Highest grades of a course
// @Tags Grades
// @Produce json
// @Param id path string true "Course ID"
// @Param limit query int false "How many (default 10)"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/top-grades [get]
func (h *GradeHandler) TopGrades(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		response.Error(c, err)
		return
	}
	n := 0
	if limit != nil {
		n = *limit
	}
	grades, err := h.grades.TopGradesForCourse(c.Request.Context(), c.Param("id"), n)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, grades, nil)
}
