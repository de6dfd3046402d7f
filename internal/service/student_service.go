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
	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
)

// Blob categories for profile photos.
const (
	StudentPhotoCategory = "students"
	TeacherPhotoCategory = "teachers"
)

const (
	studentCodePrefix = "EST"
	studentCodeWidth  = 6
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByCode(ctx context.Context, code string) (*models.Student, error)
	FindByAccountID(ctx context.Context, accountID string) (*models.Student, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	ExistsByAccount(ctx context.Context, accountID, excludeID string) (bool, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	UnlinkAccount(ctx context.Context, accountID string) error
	Delete(ctx context.Context, id string) error
	CountByDistrict(ctx context.Context) ([]models.DistrictCount, error)
}

// accountStore is the slice of the user directory the profile registries touch.
type accountStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
}

type blobStore interface {
	Store(category, originalName string, r io.Reader) (string, error)
	Delete(key, category string) error
}

// CreateStudentRequest registers a student. An empty code is generated.
type CreateStudentRequest struct {
	Code       string     `json:"code" validate:"omitempty,max=20"`
	FirstNames string     `json:"first_names" validate:"required,max=100"`
	LastNames  string     `json:"last_names" validate:"required,max=100"`
	Email      *string    `json:"email" validate:"omitempty,email"`
	Phone      *string    `json:"phone" validate:"omitempty,max=20"`
	Address    *string    `json:"address" validate:"omitempty,max=255"`
	District   *string    `json:"district" validate:"omitempty,max=100"`
	BirthDate  *time.Time `json:"birth_date"`
	AccountID  *string    `json:"account_id"`
}

// UpdateStudentRequest replaces a student's registry data. An empty code keeps
// the current one; a nil account id unbinds the account.
type UpdateStudentRequest CreateStudentRequest

// UpdateStudentProfileRequest patches the non-nil fields.
type UpdateStudentProfileRequest struct {
	FirstNames *string    `json:"first_names" validate:"omitempty,max=100"`
	LastNames  *string    `json:"last_names" validate:"omitempty,max=100"`
	Email      *string    `json:"email" validate:"omitempty,email"`
	Phone      *string    `json:"phone" validate:"omitempty,max=20"`
	Address    *string    `json:"address" validate:"omitempty,max=255"`
	District   *string    `json:"district" validate:"omitempty,max=100"`
	BirthDate  *time.Time `json:"birth_date"`
}

// RegisterStudentRequest creates a STUDENT account and its profile together.
type RegisterStudentRequest struct {
	Email    string               `json:"email" validate:"required,email"`
	Password string               `json:"password" validate:"required,min=6"`
	Profile  CreateStudentRequest `json:"profile"`
}

// StudentService manages the student registry.
type StudentService struct {
	repo      studentRepository
	accounts  accountStore
	blobs     blobStore
	hasher    PasswordHasher
	tx        txRunner
	cache     *CacheService
	cascade   config.CascadeConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs StudentService. cache may be nil.
func NewStudentService(repo studentRepository, accounts accountStore, blobs blobStore, hasher PasswordHasher, tx txRunner, cache *CacheService, cascade config.CascadeConfig, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	return &StudentService{
		repo:      repo,
		accounts:  accounts,
		blobs:     blobs,
		hasher:    hasher,
		tx:        ensureRunner(tx),
		cache:     cache,
		cascade:   cascade,
		validator: validate,
		logger:    logger,
	}
}

// List returns students with pagination.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list students")
	}
	return students, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns a student by id.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "student")
	}
	return student, nil
}

// GetByCode returns a student by registry code.
func (s *StudentService) GetByCode(ctx context.Context, code string) (*models.Student, error) {
	student, err := s.repo.FindByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, lookupError(err, "student")
	}
	return student, nil
}

// GetByAccount returns the student bound to an account.
func (s *StudentService) GetByAccount(ctx context.Context, accountID string) (*models.Student, error) {
	student, err := s.repo.FindByAccountID(ctx, accountID)
	if err != nil {
		return nil, lookupError(err, "student")
	}
	return student, nil
}

// Create registers a student.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student payload")
	}
	var student *models.Student
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		created, err := s.create(ctx, req)
		student = created
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("student created", zap.String("student_id", student.ID), zap.String("code", student.Code))
	return student, nil
}

// CreateWithAccount registers a STUDENT account and a student bound to it in
// one transaction.
func (s *StudentService) CreateWithAccount(ctx context.Context, req RegisterStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student registration payload")
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, internalError(err, "failed to hash password")
	}

	var student *models.Student
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		account, err := createAccount(ctx, s.accounts, req.Email, hash, models.RoleStudent)
		if err != nil {
			return err
		}
		profile := req.Profile
		profile.AccountID = &account.ID
		if profile.Email == nil {
			profile.Email = &account.Email
		}
		student, err = s.create(ctx, profile)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("student registered", zap.String("student_id", student.ID), zap.String("account_id", deref(student.AccountID)))
	return student, nil
}

func (s *StudentService) create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	code := strings.TrimSpace(req.Code)
	if code != "" {
		if err := ensureCodeAvailable(ctx, s.repo, code, "", "student"); err != nil {
			return nil, err
		}
	} else {
		generated, err := nextCode(ctx, s.repo, studentCodePrefix, studentCodeWidth)
		if err != nil {
			return nil, err
		}
		code = generated
	}

	accountID := normalizeOptional(req.AccountID)
	if accountID != nil {
		if err := ensureAccountBindable(ctx, s.accounts, s.repo, *accountID, "", "student"); err != nil {
			return nil, err
		}
	}

	student := &models.Student{
		Code:       code,
		FirstNames: strings.TrimSpace(req.FirstNames),
		LastNames:  strings.TrimSpace(req.LastNames),
		Email:      normalizeEmail(req.Email),
		Phone:      normalizeOptional(req.Phone),
		Address:    normalizeOptional(req.Address),
		District:   normalizeOptional(req.District),
		BirthDate:  req.BirthDate,
		AccountID:  accountID,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, writeError(err, "student", "failed to create student")
	}
	return student, nil
}

// Update replaces registry data. A changed code or account is re-checked
// against every other student.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student payload")
	}
	var student *models.Student
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "student")
		}
		if code := strings.TrimSpace(req.Code); code != "" && code != current.Code {
			if err := ensureCodeAvailable(ctx, s.repo, code, id, "student"); err != nil {
				return err
			}
			current.Code = code
		}
		accountID := normalizeOptional(req.AccountID)
		if accountID != nil && deref(current.AccountID) != *accountID {
			if err := ensureAccountBindable(ctx, s.accounts, s.repo, *accountID, id, "student"); err != nil {
				return err
			}
		}
		current.AccountID = accountID
		current.FirstNames = strings.TrimSpace(req.FirstNames)
		current.LastNames = strings.TrimSpace(req.LastNames)
		current.Email = normalizeEmail(req.Email)
		current.Phone = normalizeOptional(req.Phone)
		current.Address = normalizeOptional(req.Address)
		current.District = normalizeOptional(req.District)
		current.BirthDate = req.BirthDate
		if err := s.repo.Update(ctx, current); err != nil {
			return writeError(err, "student", "failed to update student")
		}
		student = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)
	return student, nil
}

// UpdateProfile patches the provided fields. A changed email is copied onto
// the bound account, which must not collide with another account.
func (s *StudentService) UpdateProfile(ctx context.Context, id string, req UpdateStudentProfileRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid profile payload")
	}
	var student *models.Student
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "student")
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
		if req.Address != nil {
			current.Address = normalizeOptional(req.Address)
		}
		if req.District != nil {
			current.District = normalizeOptional(req.District)
		}
		if req.BirthDate != nil {
			current.BirthDate = req.BirthDate
		}
		if email := normalizeEmail(req.Email); email != nil {
			current.Email = email
			if current.AccountID != nil {
				if err := propagateEmail(ctx, s.accounts, *current.AccountID, *email); err != nil {
					return err
				}
			}
		}
		if err := s.repo.Update(ctx, current); err != nil {
			return writeError(err, "student", "failed to update student profile")
		}
		student = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	if req.FirstNames != nil || req.LastNames != nil {
		s.invalidateStats(ctx)
	}
	return student, nil
}

// UpdatePhoto stores a new photo and swaps it in. The new blob is stored
// before the transaction so a storage failure leaves the student untouched;
// the previous blob is removed only after the record points at the new one.
func (s *StudentService) UpdatePhoto(ctx context.Context, id, filename string, content io.Reader) (*models.Student, error) {
	key, err := s.blobs.Store(StudentPhotoCategory, filename, content)
	if err != nil {
		return nil, internalError(err, "failed to store photo")
	}

	var student *models.Student
	var previous string
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "student")
		}
		previous = deref(current.Photo)
		current.Photo = &key
		if err := s.repo.Update(ctx, current); err != nil {
			return writeError(err, "student", "failed to update student photo")
		}
		student = current
		return nil
	})
	if err != nil {
		s.DiscardPhoto(key)
		return nil, err
	}
	if previous != "" {
		s.DiscardPhoto(previous)
	}
	return student, nil
}

// Delete removes a student. With cascade enabled the bound account goes too.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	var photo string
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		student, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "student")
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return writeError(err, "student", "failed to delete student")
		}
		if s.cascade.AccountOnProfileDelete && student.AccountID != nil {
			if err := s.accounts.Delete(ctx, *student.AccountID); err != nil && !errors.Is(err, sql.ErrNoRows) {
				return internalError(err, "failed to delete bound account")
			}
		}
		photo = deref(student.Photo)
		return nil
	})
	if err != nil {
		return err
	}
	s.ProfileRemoved(ctx, photo)
	s.logger.Info("student deleted", zap.String("student_id", id), zap.Bool("account_cascade", s.cascade.AccountOnProfileDelete))
	return nil
}

// DeleteByAccount removes the student bound to accountID, if any. It reports
// whether a student was removed and its photo key; the caller passes both to
// ProfileRemoved after commit.
func (s *StudentService) DeleteByAccount(ctx context.Context, accountID string) (string, bool, error) {
	student, err := s.repo.FindByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, internalError(err, "failed to load student")
	}
	if err := s.repo.Delete(ctx, student.ID); err != nil {
		return "", false, writeError(err, "student", "failed to delete student")
	}
	return deref(student.Photo), true, nil
}

// ProfileRemoved runs the post-commit cleanup of a deleted student. Its grades
// went with it, so every cached grade statistic is dropped.
func (s *StudentService) ProfileRemoved(ctx context.Context, photo string) {
	s.DiscardPhoto(photo)
	s.invalidateStats(ctx)
}

// invalidateStats drops cached statistics that count or name students.
func (s *StudentService) invalidateStats(ctx context.Context) {
	s.cache.Invalidate(ctx, allCourseStatsPattern, evaluationTypesCache)
}

// UnlinkAccount clears the binding of the student holding accountID.
func (s *StudentService) UnlinkAccount(ctx context.Context, accountID string) error {
	if err := s.repo.UnlinkAccount(ctx, accountID); err != nil {
		return internalError(err, "failed to unlink student account")
	}
	return nil
}

// DiscardPhoto deletes a stored photo. Failures are logged only.
func (s *StudentService) DiscardPhoto(key string) {
	if key == "" || s.blobs == nil {
		return
	}
	if err := s.blobs.Delete(key, StudentPhotoCategory); err != nil {
		s.logger.Warn("failed to delete student photo", zap.String("key", key), zap.Error(err))
	}
}

// CountByDistrict reports how many students live in each district.
func (s *StudentService) CountByDistrict(ctx context.Context) ([]models.DistrictCount, error) {
	counts, err := s.repo.CountByDistrict(ctx)
	if err != nil {
		return nil, internalError(err, "failed to count students by district")
	}
	return counts, nil
}

// createAccount inserts a new account for a profile registration.
func createAccount(ctx context.Context, accounts accountStore, email, passwordHash string, role models.UserRole) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	taken, err := accounts.ExistsByEmail(ctx, email, "")
	if err != nil {
		return nil, internalError(err, "failed to check email uniqueness")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	}
	account := &models.User{Email: email, PasswordHash: passwordHash, Role: role, Active: true}
	if err := accounts.Create(ctx, account); err != nil {
		return nil, writeError(err, "account", "failed to create account")
	}
	return account, nil
}

// propagateEmail copies a profile email onto its bound account.
func propagateEmail(ctx context.Context, accounts accountStore, accountID, email string) error {
	account, err := accounts.FindByID(ctx, accountID)
	if err != nil {
		return lookupError(err, "account")
	}
	if account.Email == email {
		return nil
	}
	taken, err := accounts.ExistsByEmail(ctx, email, accountID)
	if err != nil {
		return internalError(err, "failed to check email uniqueness")
	}
	if taken {
		return appErrors.Clone(appErrors.ErrConflict, "email already exists")
	}
	account.Email = email
	if err := accounts.Update(ctx, account); err != nil {
		return writeError(err, "account", "failed to update account email")
	}
	return nil
}
