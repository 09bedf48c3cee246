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

type subjectRepository interface {
	List(ctx context.Context, courseID string) ([]models.SubjectDetail, error)
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, id string) error
}

// SubjectService provides subject management.
type SubjectService struct {
	repo      subjectRepository
	courses   courseLookup
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs a SubjectService instance.
func NewSubjectService(repo subjectRepository, courses courseLookup, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SubjectService{repo: repo, courses: courses, audit: audit, validator: validate, logger: logger}
}

// List returns subjects, optionally scoped to a course.
func (s *SubjectService) List(ctx context.Context, courseID string) ([]models.SubjectDetail, error) {
	subjects, err := s.repo.List(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, nil
}

// Get returns a subject by identifier.
func (s *SubjectService) Get(ctx context.Context, id string) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// Create adds a new subject under an existing course.
func (s *SubjectService) Create(ctx context.Context, actorID string, req models.SubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	if err := s.checkCourse(ctx, req.CourseID); err != nil {
		return nil, err
	}

	subject := &models.Subject{Name: req.Name, CourseID: req.CourseID}
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	s.recordAudit(ctx, actorID, models.AuditActionCreate, subject.ID)
	return subject, nil
}

// Update changes a subject's name or course.
func (s *SubjectService) Update(ctx context.Context, actorID, id string, req models.SubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	subject, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkCourse(ctx, req.CourseID); err != nil {
		return nil, err
	}

	subject.Name = req.Name
	subject.CourseID = req.CourseID
	if err := s.repo.Update(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	s.recordAudit(ctx, actorID, models.AuditActionUpdate, subject.ID)
	return subject, nil
}

// Delete removes a subject.
func (s *SubjectService) Delete(ctx context.Context, actorID, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}
	s.recordAudit(ctx, actorID, models.AuditActionDelete, id)
	return nil
}

func (s *SubjectService) checkCourse(ctx context.Context, courseID string) error {
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

func (s *SubjectService) recordAudit(ctx context.Context, actorID, action, resourceID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{Action: action, Resource: "subject", ResourceID: &resourceID}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record subject audit log", zap.Error(err))
	}
}
