package handler

import (
	"context"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gestion-notas-api/internal/models"
	"github.com/noah-isme/gestion-notas-api/internal/service"
	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
	"github.com/noah-isme/gestion-notas-api/pkg/response"
)

type studentService interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Student, error)
	GetByCode(ctx context.Context, code string) (*models.Student, error)
	GetByAccount(ctx context.Context, accountID string) (*models.Student, error)
	Create(ctx context.Context, req service.CreateStudentRequest) (*models.Student, error)
	CreateWithAccount(ctx context.Context, req service.RegisterStudentRequest) (*models.Student, error)
	Update(ctx context.Context, id string, req service.UpdateStudentRequest) (*models.Student, error)
	UpdateProfile(ctx context.Context, id string, req service.UpdateStudentProfileRequest) (*models.Student, error)
	UpdatePhoto(ctx context.Context, id, filename string, content io.Reader) (*models.Student, error)
	Delete(ctx context.Context, id string) error
	CountByDistrict(ctx context.Context) ([]models.DistrictCount, error)
}

// StudentHandler exposes student registry endpoints.
type StudentHandler struct {
	students studentService
	photos   PhotoPolicy
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentService, photos PhotoPolicy) *StudentHandler {
	return &StudentHandler{students: students, photos: photos}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param search query string false "Search by name or code"
// @Param district query string false "Filter by district"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param sort_by query string false "Sort by (code, last_names, created_at)"
// @Param sort_order query string false "Sort order"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	var filter models.StudentFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.District = strings.TrimSpace(c.Query("district"))
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	students, pagination, err := h.students.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, students, pagination)
}

// Get godoc
// @Summary Get student detail
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, student, nil)
}

// GetByCode godoc
// @Summary Get student by code
// @Tags Students
// @Produce json
// @Param code path string true "Student code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/code/{code} [get]
func (h *StudentHandler) GetByCode(c *gin.Context) {
	student, err := h.students.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, student, nil)
}

// GetByAccount godoc
// @Summary Get the student bound to an account
// @Tags Students
// @Produce json
// @Param accountId path string true "Account ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/account/{accountId} [get]
func (h *StudentHandler) GetByAccount(c *gin.Context) {
	student, err := h.students.GetByAccount(c.Request.Context(), c.Param("accountId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, student, nil)
}

// Me godoc
// @Summary Get the caller's student profile
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/me [get]
func (h *StudentHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	student, err := h.students.GetByAccount(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, student, nil)
}

// Create godoc
// @Summary Create student
// @Description Registers a student. An empty code is generated as EST followed by six digits.
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.CreateStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req service.CreateStudentRequest
	if !bindJSON(c, &req, "invalid student payload") {
		return
	}
	student, err := h.students.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Register godoc
// @Summary Create a student together with its login account
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.RegisterStudentRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/register [post]
func (h *StudentHandler) Register(c *gin.Context) {
	var req service.RegisterStudentRequest
	if !bindJSON(c, &req, "invalid registration payload") {
		return
	}
	student, err := h.students.CreateWithAccount(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Update student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.UpdateStudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	var req service.UpdateStudentRequest
	if !bindJSON(c, &req, "invalid student payload") {
		return
	}
	student, err := h.students.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, student, nil)
}

// UpdateProfile godoc
// @Summary Patch student profile
// @Description Updates only the provided fields. A changed email is copied to the bound account.
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.UpdateStudentProfileRequest true "Profile payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/profile [patch]
func (h *StudentHandler) UpdateProfile(c *gin.Context) {
	var req service.UpdateStudentProfileRequest
	if !bindJSON(c, &req, "invalid profile payload") {
		return
	}
	student, err := h.students.UpdateProfile(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, student, nil)
}

// UploadPhoto godoc
// @Summary Replace student photo
// @Tags Students
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Student ID"
// @Param photo formData file true "Photo"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/{id}/photo [put]
func (h *StudentHandler) UploadPhoto(c *gin.Context) {
	filename, content, err := h.photos.readPhoto(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	student, err := h.students.UpdatePhoto(c.Request.Context(), c.Param("id"), filename, content)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, student, nil)
}

// PhotoURL godoc
// @Summary Signed download link for the student photo
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/photo-url [get]
func (h *StudentHandler) PhotoURL(c *gin.Context) {
	student, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	link, err := h.photos.link(service.StudentPhotoCategory, student.Photo)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, link, nil)
}

// Delete godoc
// @Summary Delete student
// @Description Deletes the student with its grades. The bound account follows the cascade policy.
// @Tags Students
// @Param id path string true "Student ID"
// @Success 204
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	if err := h.students.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Stats godoc
// @Summary Student count per district
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/stats/districts [get]
func (h *StudentHandler) Stats(c *gin.Context) {
	counts, err := h.students.CountByDistrict(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, counts, nil)
}
