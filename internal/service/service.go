package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/gestion-notas-api/internal/models"
	"github.com/noah-isme/gestion-notas-api/internal/repository"
	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
)

// txRunner scopes a unit of work to one database transaction.
type txRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// directRunner runs fn without a transaction. Used when no transactor is wired.
type directRunner struct{}

func (directRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func ensureRunner(tx txRunner) txRunner {
	if tx == nil {
		return directRunner{}
	}
	return tx
}

// internalError keeps typed application errors and wraps anything else as internal.
func internalError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if repository.IsMalformedID(err) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed identifier")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// lookupError maps a failed read of entity to NotFound or internal. An id the
// store cannot parse names no row, so it is NotFound too.
func lookupError(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) || repository.IsMalformedID(err) {
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	}
	return internalError(err, "failed to load "+entity)
}

// writeError maps a failed write. A unique violation raised by the store is
// the same failure the registry pre-checks report.
func writeError(err error, entity, message string) error {
	if uv, ok := repository.AsUniqueViolation(err); ok {
		switch uv.Constraint {
		case repository.ConstraintStudentCode, repository.ConstraintTeacherCode, repository.ConstraintCourseCode:
			return appErrors.Wrap(err, appErrors.ErrDuplicateCode.Code, appErrors.ErrDuplicateCode.Status, entity+" code already exists")
		case repository.ConstraintStudentAccount, repository.ConstraintTeacherAccount:
			return appErrors.Wrap(err, appErrors.ErrAccountAlreadyBound.Code, appErrors.ErrAccountAlreadyBound.Status, "account already bound to another "+entity)
		case repository.ConstraintUserEmail:
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "email already exists")
		default:
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, message)
		}
	}
	if errors.Is(err, sql.ErrNoRows) || repository.IsMalformedID(err) {
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	}
	return internalError(err, message)
}

func validationError(err error, message string) error {
	appErr := appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return appErr
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Tag()
	}
	return appErr.WithDetails(details)
}

// NewValidator reports failing fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}

func paginate(page, pageSize, total int) *models.Pagination {
	page, pageSize = models.NormalizePage(page, pageSize)
	return &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
}

// codeSequence is the part of a registry needed to mint and check codes.
type codeSequence interface {
	Count(ctx context.Context) (int, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
}

const maxCodeAttempts = 1000

// nextCode mints prefix + zero padded (count+1). Numbers freed by deletes are
// never reused, so when count+1 is already taken the sequence walks forward.
// Two concurrent callers can still mint the same code; the unique index
// rejects the loser.
func nextCode(ctx context.Context, seq codeSequence, prefix string, width int) (string, error) {
	total, err := seq.Count(ctx)
	if err != nil {
		return "", internalError(err, "failed to count records")
	}
	for n := total + 1; n <= total+maxCodeAttempts; n++ {
		code := fmt.Sprintf("%s%0*d", prefix, width, n)
		taken, err := seq.ExistsByCode(ctx, code, "")
		if err != nil {
			return "", internalError(err, "failed to check code uniqueness")
		}
		if !taken {
			return code, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrInternal, "could not allocate a free "+prefix+" code")
}

// ensureCodeAvailable rejects code when another record of the same kind holds it.
func ensureCodeAvailable(ctx context.Context, seq codeSequence, code, excludeID, entity string) error {
	taken, err := seq.ExistsByCode(ctx, code, excludeID)
	if err != nil {
		return internalError(err, "failed to check code uniqueness")
	}
	if taken {
		return appErrors.Clone(appErrors.ErrDuplicateCode, fmt.Sprintf("%s code %s already exists", entity, code))
	}
	return nil
}

type accountReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type accountBindings interface {
	ExistsByAccount(ctx context.Context, accountID, excludeID string) (bool, error)
}

// ensureAccountBindable checks that accountID exists and no other profile of
// the same kind references it.
func ensureAccountBindable(ctx context.Context, accounts accountReader, bindings accountBindings, accountID, excludeID, entity string) error {
	if _, err := accounts.FindByID(ctx, accountID); err != nil {
		return lookupError(err, "account")
	}
	bound, err := bindings.ExistsByAccount(ctx, accountID, excludeID)
	if err != nil {
		return internalError(err, "failed to check account binding")
	}
	if bound {
		return appErrors.Clone(appErrors.ErrAccountAlreadyBound, "account already bound to another "+entity)
	}
	return nil
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func normalizeEmail(value *string) *string {
	normalized := normalizeOptional(value)
	if normalized == nil {
		return nil
	}
	lower := strings.ToLower(*normalized)
	return &lower
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
