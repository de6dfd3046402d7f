package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gestion-notas-api/internal/models"
	"github.com/noah-isme/gestion-notas-api/internal/service"
	"github.com/noah-isme/gestion-notas-api/pkg/response"
)

type courseService interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.CourseDetail, error)
	GetByCode(ctx context.Context, code string) (*models.CourseDetail, error)
	Create(ctx context.Context, req service.CreateCourseRequest) (*models.Course, error)
	Update(ctx context.Context, id string, req service.UpdateCourseRequest) (*models.Course, error)
	AssignTeacher(ctx context.Context, id, teacherID string) (*models.CourseDetail, error)
	UnassignTeacher(ctx context.Context, id string) (*models.CourseDetail, error)
	Activate(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	CountByTeacher(ctx context.Context) ([]models.TeacherCourseCount, error)
}

// CourseHandler exposes course registry endpoints.
type CourseHandler struct {
	courses courseService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(courses courseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

type assignTeacherRequest struct {
	TeacherID string `json:"teacher_id" binding:"required"`
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Param search query string false "Search by name or code"
// @Param active query bool false "Filter by active flag"
// @Param teacher_id query string false "Filter by teacher"
// @Param credits query int false "Exact credits"
// @Param min_credits query int false "Minimum credits"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	var filter models.CourseFilter
	var err error
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.TeacherID = c.Query("teacher_id")
	if filter.Active, err = queryBool(c, "active"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.Credits, err = queryInt(c, "credits"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.MinCredits, err = queryInt(c, "min_credits"); err != nil {
		response.Error(c, err)
		return
	}
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	courses, pagination, err := h.courses.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, courses, pagination)
}

// Get godoc
// @Summary Get course detail
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.courses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, course, nil)
}

// GetByCode godoc
// @Summary Get course by code
// @Tags Courses
// @Produce json
// @Param code path string true "Course code"
// @Success 200 {object} response.Envelope
// @Router /courses/code/{code} [get]
func (h *CourseHandler) GetByCode(c *gin.Context) {
	course, err := h.courses.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, course, nil)
}

// Create godoc
// @Summary Create course
// @Description Credits default to 3 and the course starts active. An empty code is generated as CUR followed by four digits.
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body service.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req service.CreateCourseRequest
	if !bindJSON(c, &req, "invalid course payload") {
		return
	}
	course, err := h.courses.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.UpdateCourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	var req service.UpdateCourseRequest
	if !bindJSON(c, &req, "invalid course payload") {
		return
	}
	course, err := h.courses.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, course, nil)
}

// AssignTeacher godoc
// @Summary Assign a teacher to a course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body assignTeacherRequest true "Teacher"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/teacher [put]
func (h *CourseHandler) AssignTeacher(c *gin.Context) {
	var req assignTeacherRequest
	if !bindJSON(c, &req, "teacher_id is required") {
		return
	}
	course, err := h.courses.AssignTeacher(c.Request.Context(), c.Param("id"), req.TeacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, course, nil)
}

// UnassignTeacher godoc
// @Summary Remove the teacher of a course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/teacher [delete]
func (h *CourseHandler) UnassignTeacher(c *gin.Context) {
	course, err := h.courses.UnassignTeacher(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, course, nil)
}

// Activate godoc
// @Summary Activate course
// @Tags Courses
// @Param id path string true "Course ID"
// @Success 204
// @Router /courses/{id}/activate [patch]
func (h *CourseHandler) Activate(c *gin.Context) {
	if err := h.courses.Activate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Deactivate godoc
// @Summary Deactivate course
// @Tags Courses
// @Param id path string true "Course ID"
// @Success 204
// @Router /courses/{id}/deactivate [patch]
func (h *CourseHandler) Deactivate(c *gin.Context) {
	if err := h.courses.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Delete course
// @Tags Courses
// @Param id path string true "Course ID"
// @Success 204
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	if err := h.courses.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Stats godoc
// @Summary Course count per teacher
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses/stats/teachers [get]
func (h *CourseHandler) Stats(c *gin.Context) {
	counts, err := h.courses.CountByTeacher(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, counts, nil)
}
