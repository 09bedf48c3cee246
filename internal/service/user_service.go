package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/progressive-sch/progressive-api/internal/models"
	appErrors "github.com/progressive-sch/progressive-api/pkg/errors"
)

const defaultTeacherPassword = "1234"

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	ListAdmissionNumbers(ctx context.Context, prefix string) ([]string, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AdmissionConfig controls how student admission numbers and derived
// credentials are generated.
type AdmissionConfig struct {
	Prefix        string
	SuffixLength  int
	StudentDomain string
	StaffDomain   string
}

// UserService provides account management for students, teachers and admins.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
	config    AdmissionConfig
}

// NewUserService constructs a UserService instance.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger, config AdmissionConfig) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.Prefix == "" {
		config.Prefix = "prog"
	}
	if config.SuffixLength <= 0 {
		config.SuffixLength = 4
	}
	return &UserService{repo: repo, validator: validate, logger: logger, config: config}
}

// CreateStudent registers a student account. The admission number is the next
// sequential number under the configured prefix; email and initial password
// are derived from it.
func (s *UserService) CreateStudent(ctx context.Context, actorID string, req models.CreateStudentRequest) (*models.CreatedStudent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	admission, err := s.NextAdmissionNumber(ctx)
	if err != nil {
		return nil, err
	}

	email := fmt.Sprintf("%s@%s", admission, s.config.StudentDomain)
	hash, err := bcrypt.GenerateFromPassword([]byte(admission), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:           email,
		PasswordHash:    string(hash),
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Role:            models.RoleStudent,
		AdmissionNumber: &admission,
		DepartmentID:    &req.DepartmentID,
		CourseID:        &req.CourseID,
		ClassID:         &req.ClassID,
		SemesterID:      &req.SemesterID,
		Active:          true,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		// A concurrent registration can win the same admission number; the
		// unique constraint surfaces it here.
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "admission number already taken, retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.audit(ctx, actorID, models.AuditActionCreate, "student", user.ID)

	return &models.CreatedStudent{
		User:            *user,
		AdmissionNumber: admission,
		Email:           email,
		InitialPassword: admission,
	}, nil
}

// CreateTeacher registers a teacher account with an email derived from the
// names on the staff domain and the default initial password.
func (s *UserService) CreateTeacher(ctx context.Context, actorID string, req models.CreateTeacherRequest) (*models.CreatedTeacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	email := s.teacherEmail(req.FirstName, req.LastName)
	exists, err := s.repo.ExistsByEmail(ctx, email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("email %s already in use", email))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(defaultTeacherPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         models.RoleTeacher,
		Active:       true,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("email %s already in use", email))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}

	s.audit(ctx, actorID, models.AuditActionCreate, "teacher", user.ID)

	return &models.CreatedTeacher{
		User:            *user,
		Email:           email,
		InitialPassword: defaultTeacherPassword,
	}, nil
}

// Get returns a user by identifier.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// List returns users matching the filter with pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Update changes a user's mutable fields.
func (s *UserService) Update(ctx context.Context, actorID, id string, req models.UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	user.FirstName = req.FirstName
	user.LastName = req.LastName
	if req.DepartmentID != nil {
		user.DepartmentID = req.DepartmentID
	}
	if req.CourseID != nil {
		user.CourseID = req.CourseID
	}
	if req.ClassID != nil {
		user.ClassID = req.ClassID
	}
	if req.SemesterID != nil {
		user.SemesterID = req.SemesterID
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.audit(ctx, actorID, models.AuditActionUpdate, "user", user.ID)
	return user, nil
}

// Delete deactivates a user account.
func (s *UserService) Delete(ctx context.Context, actorID, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	s.audit(ctx, actorID, models.AuditActionDelete, "user", id)
	return nil
}

// NextAdmissionNumber scans existing numbers under the prefix and returns
// max+1 zero-padded to the configured width. Malformed suffixes are skipped.
func (s *UserService) NextAdmissionNumber(ctx context.Context) (string, error) {
	numbers, err := s.repo.ListAdmissionNumbers(ctx, s.config.Prefix)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list admission numbers")
	}

	max := 0
	for _, number := range numbers {
		suffix := strings.TrimPrefix(number, s.config.Prefix)
		if suffix == number {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil || n <= 0 {
			continue
		}
		if n > max {
			max = n
		}
	}

	return fmt.Sprintf("%s%0*d", s.config.Prefix, s.config.SuffixLength, max+1), nil
}

func (s *UserService) teacherEmail(firstName, lastName string) string {
	local := strings.ToLower(strings.ReplaceAll(firstName+lastName, " ", ""))
	return fmt.Sprintf("%s@%s", local, s.config.StaffDomain)
}

func (s *UserService) audit(ctx context.Context, actorID, action, resource, resourceID string) {
	log := &models.AuditLog{Action: action, Resource: resource, ResourceID: &resourceID}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.repo.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("resource", resource), zap.Error(err))
	}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key value")
}
