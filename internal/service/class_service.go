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

type classRepository interface {
	List(ctx context.Context, courseID string) ([]models.SchoolClassDetail, error)
	FindByID(ctx context.Context, id string) (*models.SchoolClass, error)
	Create(ctx context.Context, class *models.SchoolClass) error
	Update(ctx context.Context, class *models.SchoolClass) error
	Delete(ctx context.Context, id string) error
}

type courseLookup interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// ClassService provides class management.
type ClassService struct {
	repo      classRepository
	courses   courseLookup
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs a ClassService instance.
func NewClassService(repo classRepository, courses courseLookup, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ClassService{repo: repo, courses: courses, audit: audit, validator: validate, logger: logger}
}

// List returns classes, optionally scoped to a course.
func (s *ClassService) List(ctx context.Context, courseID string) ([]models.SchoolClassDetail, error) {
	classes, err := s.repo.List(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, nil
}

// Get returns a class by identifier.
func (s *ClassService) Get(ctx context.Context, id string) (*models.SchoolClass, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// Create adds a new class under an existing course.
func (s *ClassService) Create(ctx context.Context, actorID string, req models.ClassRequest) (*models.SchoolClass, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	if err := s.checkCourse(ctx, req.CourseID); err != nil {
		return nil, err
	}

	class := &models.SchoolClass{Name: req.Name, CourseID: req.CourseID}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	s.recordAudit(ctx, actorID, models.AuditActionCreate, class.ID)
	return class, nil
}

// Update changes a class's name or course.
func (s *ClassService) Update(ctx context.Context, actorID, id string, req models.ClassRequest) (*models.SchoolClass, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	class, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkCourse(ctx, req.CourseID); err != nil {
		return nil, err
	}

	class.Name = req.Name
	class.CourseID = req.CourseID
	if err := s.repo.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	s.recordAudit(ctx, actorID, models.AuditActionUpdate, class.ID)
	return class, nil
}

// Delete removes a class.
func (s *ClassService) Delete(ctx context.Context, actorID, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}
	s.recordAudit(ctx, actorID, models.AuditActionDelete, id)
	return nil
}

func (s *ClassService) checkCourse(ctx context.Context, courseID string) error {
	if s.courses == nil {
		return nil
	}
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "course does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course")
	}
	return nil
}

func (s *ClassService) recordAudit(ctx context.Context, actorID, action, resourceID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{Action: action, Resource: "class", ResourceID: &resourceID}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record class audit log", zap.Error(err))
	}
}
