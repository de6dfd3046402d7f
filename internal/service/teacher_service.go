package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gestion-notas-api/internal/models"
	"github.com/noah-isme/gestion-notas-api/pkg/config"
)

const (
	teacherCodePrefix = "DOC"
	teacherCodeWidth  = 6
)

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	FindByCode(ctx context.Context, code string) (*models.Teacher, error)
	FindByAccountID(ctx context.Context, accountID string) (*models.Teacher, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	ExistsByAccount(ctx context.Context, accountID, excludeID string) (bool, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	UnlinkAccount(ctx context.Context, accountID string) error
	Delete(ctx context.Context, id string) error
	CountBySpecialty(ctx context.Context) ([]models.SpecialtyCount, error)
}

// CreateTeacherRequest registers a teacher. An empty code is generated.
type CreateTeacherRequest struct {
	Code       string     `json:"code" validate:"omitempty,max=20"`
	FirstNames string     `json:"first_names" validate:"required,max=100"`
	LastNames  string     `json:"last_names" validate:"required,max=100"`
	Phone      *string    `json:"phone" validate:"omitempty,max=20"`
	Specialty  *string    `json:"specialty" validate:"omitempty,max=100"`
	Address    *string    `json:"address" validate:"omitempty,max=255"`
	District   *string    `json:"district" validate:"omitempty,max=100"`
	HireDate   *time.Time `json:"hire_date"`
	AccountID  *string    `json:"account_id"`
}

// UpdateTeacherRequest replaces a teacher's registry data. An empty code keeps
// the current one; a nil account id unbinds the account.
type UpdateTeacherRequest CreateTeacherRequest

// UpdateTeacherProfileRequest patches the non-nil fields. Email goes to the
// bound account since teachers carry no email of their own.
type UpdateTeacherProfileRequest struct {
	FirstNames *string    `json:"first_names" validate:"omitempty,max=100"`
	LastNames  *string    `json:"last_names" validate:"omitempty,max=100"`
	Email      *string    `json:"email" validate:"omitempty,email"`
	Phone      *string    `json:"phone" validate:"omitempty,max=20"`
	Specialty  *string    `json:"specialty" validate:"omitempty,max=100"`
	Address    *string    `json:"address" validate:"omitempty,max=255"`
	District   *string    `json:"district" validate:"omitempty,max=100"`
	HireDate   *time.Time `json:"hire_date"`
}

// RegisterTeacherRequest creates a TEACHER account and its profile together.
type RegisterTeacherRequest struct {
	Email    string               `json:"email" validate:"required,email"`
	Password string               `json:"password" validate:"required,min=6"`
	Profile  CreateTeacherRequest `json:"profile"`
}

// TeacherService manages the teacher registry.
type TeacherService struct {
	repo      teacherRepository
	accounts  accountStore
	blobs     blobStore
	hasher    PasswordHasher
	tx        txRunner
	cascade   config.CascadeConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService constructs TeacherService.
func NewTeacherService(repo teacherRepository, accounts accountStore, blobs blobStore, hasher PasswordHasher, tx txRunner, cascade config.CascadeConfig, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	return &TeacherService{
		repo:      repo,
		accounts:  accounts,
		blobs:     blobs,
		hasher:    hasher,
		tx:        ensureRunner(tx),
		cascade:   cascade,
		validator: validate,
		logger:    logger,
	}
}

// List returns teachers with pagination.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list teachers")
	}
	return teachers, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns a teacher by id.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "teacher")
	}
	return teacher, nil
}

// GetByCode returns a teacher by registry code.
func (s *TeacherService) GetByCode(ctx context.Context, code string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, lookupError(err, "teacher")
	}
	return teacher, nil
}

// GetByAccount returns the teacher bound to an account.
func (s *TeacherService) GetByAccount(ctx context.Context, accountID string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByAccountID(ctx, accountID)
	if err != nil {
		return nil, lookupError(err, "teacher")
	}
	return teacher, nil
}

// Create registers a teacher.
func (s *TeacherService) Create(ctx context.Context, req CreateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid teacher payload")
	}
	var teacher *models.Teacher
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		created, err := s.create(ctx, req)
		teacher = created
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("teacher created", zap.String("teacher_id", teacher.ID), zap.String("code", teacher.Code))
	return teacher, nil
}

// CreateWithAccount registers a TEACHER account and a teacher bound to it in
// one transaction.
func (s *TeacherService) CreateWithAccount(ctx context.Context, req RegisterTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid teacher registration payload")
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, internalError(err, "failed to hash password")
	}

	var teacher *models.Teacher
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		account, err := createAccount(ctx, s.accounts, req.Email, hash, models.RoleTeacher)
		if err != nil {
			return err
		}
		profile := req.Profile
		profile.AccountID = &account.ID
		teacher, err = s.create(ctx, profile)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("teacher registered", zap.String("teacher_id", teacher.ID), zap.String("account_id", deref(teacher.AccountID)))
	return teacher, nil
}

func (s *TeacherService) create(ctx context.Context, req CreateTeacherRequest) (*models.Teacher, error) {
	code := strings.TrimSpace(req.Code)
	if code != "" {
		if err := ensureCodeAvailable(ctx, s.repo, code, "", "teacher"); err != nil {
			return nil, err
		}
	} else {
		generated, err := nextCode(ctx, s.repo, teacherCodePrefix, teacherCodeWidth)
		if err != nil {
			return nil, err
		}
		code = generated
	}

	accountID := normalizeOptional(req.AccountID)
	if accountID != nil {
		if err := ensureAccountBindable(ctx, s.accounts, s.repo, *accountID, "", "teacher"); err != nil {
			return nil, err
		}
	}

	teacher := &models.Teacher{
		Code:       code,
		FirstNames: strings.TrimSpace(req.FirstNames),
		LastNames:  strings.TrimSpace(req.LastNames),
		Phone:      normalizeOptional(req.Phone),
		Specialty:  normalizeOptional(req.Specialty),
		Address:    normalizeOptional(req.Address),
		District:   normalizeOptional(req.District),
		HireDate:   req.HireDate,
		AccountID:  accountID,
	}
	if err := s.repo.Create(ctx, teacher); err != nil {
		return nil, writeError(err, "teacher", "failed to create teacher")
	}
	return teacher, nil
}

// Update replaces registry data. A changed code or account is re-checked
// against every other teacher.
func (s *TeacherService) Update(ctx context.Context, id string, req UpdateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid teacher payload")
	}
	var teacher *models.Teacher
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "teacher")
		}
		if code := strings.TrimSpace(req.Code); code != "" && code != current.Code {
			if err := ensureCodeAvailable(ctx, s.repo, code, id, "teacher"); err != nil {
				return err
			}
			current.Code = code
		}
		accountID := normalizeOptional(req.AccountID)
		if accountID != nil && deref(current.AccountID) != *accountID {
			if err := ensureAccountBindable(ctx, s.accounts, s.repo, *accountID, id, "teacher"); err != nil {
				return err
			}
		}
		current.AccountID = accountID
		current.FirstNames = strings.TrimSpace(req.FirstNames)
		current.LastNames = strings.TrimSpace(req.LastNames)
		current.Phone = normalizeOptional(req.Phone)
		current.Specialty = normalizeOptional(req.Specialty)
		current.Address = normalizeOptional(req.Address)
		current.District = normalizeOptional(req.District)
		current.HireDate = req.HireDate
		if err := s.repo.Update(ctx, current); err != nil {
			return writeError(err, "teacher", "failed to update teacher")
		}
		teacher = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return teacher, nil
}

// UpdateProfile patches the provided fields and copies a new email onto the
// bound account.
func (s *TeacherService) UpdateProfile(ctx context.Context, id string, req UpdateTeacherProfileRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid profile payload")
	}
	var teacher *models.Teacher
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "teacher")
		}
		if req.FirstNames != nil {
			current.FirstNames = strings.TrimSpace(*req.FirstNames)
		}
		if req.LastNames != nil {
			current.LastNames = strings.TrimSpace(*req.LastNames)
		}
		if req.Phone != nil {
			current.Phone = normalizeOptional(req.Phone)
		}
		if req.Specialty != nil {
			current.Specialty = normalizeOptional(req.Specialty)
		}
		if req.Address != nil {
			current.Address = normalizeOptional(req.Address)
		}
		if req.District != nil {
			current.District = normalizeOptional(req.District)
		}
		if req.HireDate != nil {
			current.HireDate = req.HireDate
		}
		if email := normalizeEmail(req.Email); email != nil && current.AccountID != nil {
			if err := propagateEmail(ctx, s.accounts, *current.AccountID, *email); err != nil {
				return err
			}
		}
		if err := s.repo.Update(ctx, current); err != nil {
			return writeError(err, "teacher", "failed to update teacher profile")
		}
		teacher = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return teacher, nil
}

// UpdatePhoto stores a new photo, points the teacher at it and then drops the
// previous blob.
func (s *TeacherService) UpdatePhoto(ctx context.Context, id, filename string, content io.Reader) (*models.Teacher, error) {
	key, err := s.blobs.Store(TeacherPhotoCategory, filename, content)
	if err != nil {
		return nil, internalError(err, "failed to store photo")
	}

	var teacher *models.Teacher
	var previous string
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "teacher")
		}
		previous = deref(current.Photo)
		current.Photo = &key
		if err := s.repo.Update(ctx, current); err != nil {
			return writeError(err, "teacher", "failed to update teacher photo")
		}
		teacher = current
		return nil
	})
	if err != nil {
		s.DiscardPhoto(key)
		return nil, err
	}
	if previous != "" {
		s.DiscardPhoto(previous)
	}
	return teacher, nil
}

// Delete removes a teacher. Courses they taught keep existing unassigned.
func (s *TeacherService) Delete(ctx context.Context, id string) error {
	var photo string
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		teacher, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "teacher")
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return writeError(err, "teacher", "failed to delete teacher")
		}
		if s.cascade.AccountOnProfileDelete && teacher.AccountID != nil {
			if err := s.accounts.Delete(ctx, *teacher.AccountID); err != nil && !errors.Is(err, sql.ErrNoRows) {
				return internalError(err, "failed to delete bound account")
			}
		}
		photo = deref(teacher.Photo)
		return nil
	})
	if err != nil {
		return err
	}
	if photo != "" {
		s.DiscardPhoto(photo)
	}
	s.logger.Info("teacher deleted", zap.String("teacher_id", id), zap.Bool("account_cascade", s.cascade.AccountOnProfileDelete))
	return nil
}

// DeleteByAccount removes the teacher bound to accountID, if any, and reports
// whether one was removed along with its photo key.
func (s *TeacherService) DeleteByAccount(ctx context.Context, accountID string) (string, bool, error) {
	teacher, err := s.repo.FindByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, internalError(err, "failed to load teacher")
	}
	if err := s.repo.Delete(ctx, teacher.ID); err != nil {
		return "", false, writeError(err, "teacher", "failed to delete teacher")
	}
	return deref(teacher.Photo), true, nil
}

// ProfileRemoved discards the photo of a deleted teacher. Grade statistics do
// not name teachers, so nothing cached changes.
func (s *TeacherService) ProfileRemoved(_ context.Context, photo string) {
	s.DiscardPhoto(photo)
}

// UnlinkAccount clears the binding of the teacher holding accountID.
func (s *TeacherService) UnlinkAccount(ctx context.Context, accountID string) error {
	if err := s.repo.UnlinkAccount(ctx, accountID); err != nil {
		return internalError(err, "failed to unlink teacher account")
	}
	return nil
}

// DiscardPhoto deletes a stored photo. Failures are logged only.
func (s *TeacherService) DiscardPhoto(key string) {
	if key == "" || s.blobs == nil {
		return
	}
	if err := s.blobs.Delete(key, TeacherPhotoCategory); err != nil {
		s.logger.Warn("failed to delete teacher photo", zap.String("key", key), zap.Error(err))
	}
}

// CountBySpecialty reports how many teachers share each specialty.
func (s *TeacherService) CountBySpecialty(ctx context.Context) ([]models.SpecialtyCount, error) {
	counts, err := s.repo.CountBySpecialty(ctx)
	if err != nil {
		return nil, internalError(err, "failed to count teachers by specialty")
	}
	return counts, nil
}
