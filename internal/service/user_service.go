package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gestion-notas-api/internal/models"
	"github.com/noah-isme/gestion-notas-api/pkg/config"
	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// accountProfiles is what a profile registry exposes for account deletion.
type accountProfiles interface {
	DeleteByAccount(ctx context.Context, accountID string) (string, bool, error)
	UnlinkAccount(ctx context.Context, accountID string) error
	ProfileRemoved(ctx context.Context, photo string)
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Role     string `json:"role" validate:"required"`
	Active   *bool  `json:"active"`
	Password string `json:"password" validate:"required,min=6"`
}

// UpdateUserRequest payload for updating users. Empty fields are left alone.
type UpdateUserRequest struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Role     string `json:"role"`
	Active   *bool  `json:"active"`
	Password string `json:"password" validate:"omitempty,min=6"`
}

// UserService handles the user directory.
type UserService struct {
	repo      userRepository
	profiles  []accountProfiles
	hasher    PasswordHasher
	tx        txRunner
	cascade   config.CascadeConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService. profiles are the
// registries whose records may be bound to an account.
func NewUserService(repo userRepository, hasher PasswordHasher, tx txRunner, cascade config.CascadeConfig, validate *validator.Validate, logger *zap.Logger, profiles ...accountProfiles) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	return &UserService{
		repo:      repo,
		profiles:  profiles,
		hasher:    hasher,
		tx:        ensureRunner(tx),
		cascade:   cascade,
		validator: validate,
		logger:    logger,
	}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list users")
	}
	return users, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "user")
	}
	return user, nil
}

// Create adds a new user.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, actorID string, meta models.RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid create user payload")
	}
	role, err := models.ParseUserRole(req.Role)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.ensureEmailFree(ctx, email, ""); err != nil {
		return nil, err
	}
	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, internalError(err, "failed to hash password")
	}

	user := &models.User{
		Email:        email,
		Role:         role,
		Active:       true,
		PasswordHash: passwordHash,
	}
	if req.Active != nil {
		user.Active = *req.Active
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, writeError(err, "user", "failed to create user")
	}

	s.audit(ctx, models.AuditActionUserCreate, user.ID, actorID, meta, nil,
		map[string]interface{}{"id": user.ID, "email": user.Email, "role": user.Role})
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// Update modifies the user attributes.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, actorID string, meta models.RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid update payload")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "user")
	}
	old := map[string]interface{}{"email": user.Email, "role": user.Role, "active": user.Active}

	if email := strings.ToLower(strings.TrimSpace(req.Email)); email != "" && email != user.Email {
		if err := s.ensureEmailFree(ctx, email, id); err != nil {
			return nil, err
		}
		user.Email = email
	}
	if strings.TrimSpace(req.Role) != "" {
		role, err := models.ParseUserRole(req.Role)
		if err != nil {
			return nil, err
		}
		user.Role = role
	}
	if req.Active != nil {
		user.Active = *req.Active
	}
	if req.Password != "" {
		hash, err := s.hasher.Hash(req.Password)
		if err != nil {
			return nil, internalError(err, "failed to hash password")
		}
		user.PasswordHash = hash
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, writeError(err, "user", "failed to update user")
	}

	s.audit(ctx, models.AuditActionUserUpdate, user.ID, actorID, meta, old,
		map[string]interface{}{"email": user.Email, "role": user.Role, "active": user.Active})
	return user, nil
}

// Activate enables login for the account.
func (s *UserService) Activate(ctx context.Context, id, actorID string, meta models.RequestMeta) error {
	return s.setActive(ctx, id, true, models.AuditActionUserActivate, actorID, meta)
}

// Deactivate blocks login for the account.
func (s *UserService) Deactivate(ctx context.Context, id, actorID string, meta models.RequestMeta) error {
	return s.setActive(ctx, id, false, models.AuditActionUserDeactivate, actorID, meta)
}

func (s *UserService) setActive(ctx context.Context, id string, active bool, action, actorID string, meta models.RequestMeta) error {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return writeError(err, "user", "failed to update user status")
	}
	s.audit(ctx, action, id, actorID, meta, map[string]interface{}{"active": !active}, map[string]interface{}{"active": active})
	return nil
}

// Delete removes an account. Bound profiles are deleted or unlinked depending
// on the cascade configuration, in the same transaction.
func (s *UserService) Delete(ctx context.Context, id, actorID string, meta models.RequestMeta) error {
	type removal struct {
		owner accountProfiles
		photo string
	}
	var removed []removal
	var user *models.User

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		found, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "user")
		}
		user = found
		for _, profiles := range s.profiles {
			if s.cascade.ProfileOnAccountDelete {
				photo, ok, err := profiles.DeleteByAccount(ctx, id)
				if err != nil {
					return err
				}
				if ok {
					removed = append(removed, removal{owner: profiles, photo: photo})
				}
				continue
			}
			if err := profiles.UnlinkAccount(ctx, id); err != nil {
				return err
			}
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return writeError(err, "user", "failed to delete user")
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, r := range removed {
		r.owner.ProfileRemoved(ctx, r.photo)
	}

	s.audit(ctx, models.AuditActionUserDelete, id, actorID, meta,
		map[string]interface{}{"email": user.Email, "role": user.Role}, nil)
	s.logger.Info("user deleted", zap.String("user_id", id), zap.Bool("profile_cascade", s.cascade.ProfileOnAccountDelete))
	return nil
}

func (s *UserService) ensureEmailFree(ctx context.Context, email, excludeID string) error {
	taken, err := s.repo.ExistsByEmail(ctx, email, excludeID)
	if err != nil {
		return internalError(err, "failed to check email uniqueness")
	}
	if taken {
		return appErrors.Clone(appErrors.ErrConflict, "email already exists")
	}
	return nil
}

func (s *UserService) audit(ctx context.Context, action, resourceID, actorID string, meta models.RequestMeta, oldValues, newValues map[string]interface{}) {
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "users",
		ResourceID: &resourceID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
