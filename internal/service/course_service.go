package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/progressive-sch/progressive-api/internal/models"
	appErrors "github.com/progressive-sch/progressive-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, departmentID string) ([]models.CourseDetail, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

type courseDepartmentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Department, error)
}

// CourseService provides course management.
type CourseService struct {
	repo        courseRepository
	departments courseDepartmentLookup
	audit       auditWriter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCourseService constructs a CourseService instance.
func NewCourseService(repo courseRepository, departments courseDepartmentLookup, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CourseService{repo: repo, departments: departments, audit: audit, validator: validate, logger: logger}
}

// List returns courses, optionally scoped to a department.
func (s *CourseService) List(ctx context.Context, departmentID string) ([]models.CourseDetail, error) {
	courses, err := s.repo.List(ctx, departmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, nil
}

// Get returns a course by identifier.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create adds a new course under an existing department.
func (s *CourseService) Create(ctx context.Context, actorID string, req models.CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if err := s.checkDepartment(ctx, req.DepartmentID); err != nil {
		return nil, err
	}

	course := &models.Course{Name: req.Name, DepartmentID: req.DepartmentID}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.recordAudit(ctx, actorID, models.AuditActionCreate, course.ID)
	return course, nil
}

// Update changes a course's name or department.
func (s *CourseService) Update(ctx context.Context, actorID, id string, req models.CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkDepartment(ctx, req.DepartmentID); err != nil {
		return nil, err
	}

	course.Name = req.Name
	course.DepartmentID = req.DepartmentID
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	s.recordAudit(ctx, actorID, models.AuditActionUpdate, course.ID)
	return course, nil
}

// Delete removes a course.
func (s *CourseService) Delete(ctx context.Context, actorID, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.recordAudit(ctx, actorID, models.AuditActionDelete, id)
	return nil
}

func (s *CourseService) checkDepartment(ctx context.Context, departmentID string) error {
	if s.departments == nil {
		return nil
	}
	if _, err := s.departments.FindByID(ctx, departmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "department does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check department")
	}
	return nil
}

func (s *CourseService) recordAudit(ctx context.Context, actorID, action, resourceID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{Action: action, Resource: "course", ResourceID: &resourceID}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record course audit log", zap.Error(err))
	}
}
