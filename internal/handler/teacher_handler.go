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

type teacherService interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Teacher, error)
	GetByCode(ctx context.Context, code string) (*models.Teacher, error)
	GetByAccount(ctx context.Context, accountID string) (*models.Teacher, error)
	Create(ctx context.Context, req service.CreateTeacherRequest) (*models.Teacher, error)
	CreateWithAccount(ctx context.Context, req service.RegisterTeacherRequest) (*models.Teacher, error)
	Update(ctx context.Context, id string, req service.UpdateTeacherRequest) (*models.Teacher, error)
	UpdateProfile(ctx context.Context, id string, req service.UpdateTeacherProfileRequest) (*models.Teacher, error)
	UpdatePhoto(ctx context.Context, id, filename string, content io.Reader) (*models.Teacher, error)
	Delete(ctx context.Context, id string) error
	CountBySpecialty(ctx context.Context) ([]models.SpecialtyCount, error)
}

// TeacherHandler exposes teacher registry endpoints.
type TeacherHandler struct {
	teachers teacherService
	photos   PhotoPolicy
}

// NewTeacherHandler constructs TeacherHandler.
func NewTeacherHandler(teachers teacherService, photos PhotoPolicy) *TeacherHandler {
	return &TeacherHandler{teachers: teachers, photos: photos}
}

// List godoc
// @Summary List teachers
// @Tags Teachers
// @Produce json
// @Param search query string false "Search by name or code"
// @Param specialty query string false "Filter by specialty"
// @Param district query string false "Filter by district"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /teachers [get]
func (h *TeacherHandler) List(c *gin.Context) {
	var filter models.TeacherFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Specialty = strings.TrimSpace(c.Query("specialty"))
	filter.District = strings.TrimSpace(c.Query("district"))
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	teachers, pagination, err := h.teachers.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, teachers, pagination)
}

// Get godoc
// @Summary Get teacher detail
// @Tags Teachers
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /teachers/{id} [get]
func (h *TeacherHandler) Get(c *gin.Context) {
	teacher, err := h.teachers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, teacher, nil)
}

// GetByCode godoc
// @Summary Get teacher by code
// @Tags Teachers
// @Produce json
// @Param code path string true "Teacher code"
// @Success 200 {object} response.Envelope
// @Router /teachers/code/{code} [get]
func (h *TeacherHandler) GetByCode(c *gin.Context) {
	teacher, err := h.teachers.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, teacher, nil)
}

// GetByAccount godoc
// @Summary Get the teacher bound to an account
// @Tags Teachers
// @Produce json
// @Param accountId path string true "Account ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/account/{accountId} [get]
func (h *TeacherHandler) GetByAccount(c *gin.Context) {
	teacher, err := h.teachers.GetByAccount(c.Request.Context(), c.Param("accountId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, teacher, nil)
}

// Me godoc
// @Summary Get the caller's teacher profile
// @Tags Teachers
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teachers/me [get]
func (h *TeacherHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	teacher, err := h.teachers.GetByAccount(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, teacher, nil)
}

// Create godoc
// @Summary Create teacher
// @Description Registers a teacher. An empty code is generated as DOC followed by six digits.
// @Tags Teachers
// @Accept json
// @Produce json
// @Param payload body service.CreateTeacherRequest true "Teacher payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /teachers [post]
func (h *TeacherHandler) Create(c *gin.Context) {
	var req service.CreateTeacherRequest
	if !bindJSON(c, &req, "invalid teacher payload") {
		return
	}
	teacher, err := h.teachers.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, teacher)
}

// Register godoc
// @Summary Create a teacher together with its login account
// @Tags Teachers
// @Accept json
// @Produce json
// @Param payload body service.RegisterTeacherRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Router /teachers/register [post]
func (h *TeacherHandler) Register(c *gin.Context) {
	var req service.RegisterTeacherRequest
	if !bindJSON(c, &req, "invalid registration payload") {
		return
	}
	teacher, err := h.teachers.CreateWithAccount(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, teacher)
}

// Update godoc
// @Summary Update teacher
// @Tags Teachers
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body service.UpdateTeacherRequest true "Teacher payload"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id} [put]
func (h *TeacherHandler) Update(c *gin.Context) {
	var req service.UpdateTeacherRequest
	if !bindJSON(c, &req, "invalid teacher payload") {
		return
	}
	teacher, err := h.teachers.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, teacher, nil)
}

// UpdateProfile godoc
// @Summary Patch teacher profile
// @Tags Teachers
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body service.UpdateTeacherProfileRequest true "Profile payload"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/profile [patch]
func (h *TeacherHandler) UpdateProfile(c *gin.Context) {
	var req service.UpdateTeacherProfileRequest
	if !bindJSON(c, &req, "invalid profile payload") {
		return
	}
	teacher, err := h.teachers.UpdateProfile(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, teacher, nil)
}

// UploadPhoto godoc
// @Summary Replace teacher photo
// @Tags Teachers
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Teacher ID"
// @Param photo formData file true "Photo"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/photo [put]
func (h *TeacherHandler) UploadPhoto(c *gin.Context) {
	filename, content, err := h.photos.readPhoto(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	teacher, err := h.teachers.UpdatePhoto(c.Request.Context(), c.Param("id"), filename, content)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, teacher, nil)
}

// PhotoURL godoc
// @Summary Signed download link for the teacher photo
// @Tags Teachers
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/photo-url [get]
func (h *TeacherHandler) PhotoURL(c *gin.Context) {
	teacher, err := h.teachers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	link, err := h.photos.link(service.TeacherPhotoCategory, teacher.Photo)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, link, nil)
}

// Delete godoc
// @Summary Delete teacher
// @Description Courses taught by the teacher are left without a teacher.
// @Tags Teachers
// @Param id path string true "Teacher ID"
// @Success 204
// @Router /teachers/{id} [delete]
func (h *TeacherHandler) Delete(c *gin.Context) {
	if err := h.teachers.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Stats godoc
// @Summary Teacher count per specialty
// @Tags Teachers
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teachers/stats/specialties [get]
func (h *TeacherHandler) Stats(c *gin.Context) {
	counts, err := h.teachers.CountBySpecialty(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	ok(c, counts, nil)
}
