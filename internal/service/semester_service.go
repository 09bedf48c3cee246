package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/progressive-sch/progressive-api/internal/models"
	appErrors "github.com/progressive-sch/progressive-api/pkg/errors"
)

type semesterRepository interface {
	List(ctx context.Context) ([]models.Semester, error)
	FindByID(ctx context.Context, id string) (*models.Semester, error)
	Create(ctx context.Context, semester *models.Semester) error
	Update(ctx context.Context, semester *models.Semester) error
	Delete(ctx context.Context, id string) error
}

// SemesterService provides semester management.
type SemesterService struct {
	repo      semesterRepository
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSemesterService constructs a SemesterService instance.
func NewSemesterService(repo semesterRepository, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *SemesterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SemesterService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// List returns all semesters.
func (s *SemesterService) List(ctx context.Context) ([]models.Semester, error) {
	semesters, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list semesters")
	}
	return semesters, nil
}

// Get returns a semester by identifier.
func (s *SemesterService) Get(ctx context.Context, id string) (*models.Semester, error) {
	semester, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	return semester, nil
}

// Create adds a new semester after checking the date range.
func (s *SemesterService) Create(ctx context.Context, actorID string, req models.SemesterRequest) (*models.Semester, error) {
	start, end, err := s.parseRange(req)
	if err != nil {
		return nil, err
	}

	semester := &models.Semester{Name: req.Name, StartDate: start, EndDate: end}
	if err := s.repo.Create(ctx, semester); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create semester")
	}
	s.recordAudit(ctx, actorID, models.AuditActionCreate, semester.ID)
	return semester, nil
}

// Update changes a semester's name or date range.
func (s *SemesterService) Update(ctx context.Context, actorID, id string, req models.SemesterRequest) (*models.Semester, error) {
	start, end, err := s.parseRange(req)
	if err != nil {
		return nil, err
	}

	semester, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	semester.Name = req.Name
	semester.StartDate = start
	semester.EndDate = end
	if err := s.repo.Update(ctx, semester); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update semester")
	}
	s.recordAudit(ctx, actorID, models.AuditActionUpdate, semester.ID)
	return semester, nil
}

// Delete removes a semester.
func (s *SemesterService) Delete(ctx context.Context, actorID, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete semester")
	}
	s.recordAudit(ctx, actorID, models.AuditActionDelete, id)
	return nil
}

// parseRange validates the payload and enforces start <= end.
func (s *SemesterService) parseRange(req models.SemesterRequest) (time.Time, time.Time, error) {
	if err := s.validator.Struct(req); err != nil {
		return time.Time{}, time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid semester payload")
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid start date")
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid end date")
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "end date must not precede start date")
	}
	return start, end, nil
}

func (s *SemesterService) recordAudit(ctx context.Context, actorID, action, resourceID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{Action: action, Resource: "semester", ResourceID: &resourceID}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record semester audit log", zap.Error(err))
	}
}
