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

type announcementRepository interface {
	List(ctx context.Context, filter models.FeedFilter) ([]models.Announcement, error)
	FindByID(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, announcement *models.Announcement) error
	Update(ctx context.Context, announcement *models.Announcement) error
	Delete(ctx context.Context, id string) error
}

// AnnouncementService publishes role-scoped announcements.
type AnnouncementService struct {
	repo      announcementRepository
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAnnouncementService constructs an AnnouncementService instance.
func NewAnnouncementService(repo announcementRepository, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AnnouncementService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// ListForViewer returns announcements visible to the caller's role. Admins
// see everything.
func (s *AnnouncementService) ListForViewer(ctx context.Context, viewerRole models.UserRole, limit int) ([]models.Announcement, error) {
	filter := models.FeedFilter{ViewerRole: viewerRole, Unfiltered: viewerRole == models.RoleAdmin, Limit: limit}
	announcements, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	return announcements, nil
}

// Get returns an announcement if the caller's role may see it.
func (s *AnnouncementService) Get(ctx context.Context, viewerRole models.UserRole, id string) (*models.Announcement, error) {
	announcement, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	if !announcement.Visibility.VisibleTo(viewerRole) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
	}
	return announcement, nil
}

// Create publishes an announcement.
func (s *AnnouncementService) Create(ctx context.Context, actorID string, req models.AnnouncementRequest) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}

	announcement := &models.Announcement{Title: req.Title, Content: req.Content, Visibility: req.Visibility}
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}
	s.recordAudit(ctx, actorID, models.AuditActionCreate, announcement.ID)
	return announcement, nil
}

// Update edits an announcement.
func (s *AnnouncementService) Update(ctx context.Context, actorID, id string, req models.AnnouncementRequest) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}

	announcement, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}

	announcement.Title = req.Title
	announcement.Content = req.Content
	announcement.Visibility = req.Visibility
	if err := s.repo.Update(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update announcement")
	}
	s.recordAudit(ctx, actorID, models.AuditActionUpdate, announcement.ID)
	return announcement, nil
}

// Delete removes an announcement.
func (s *AnnouncementService) Delete(ctx context.Context, actorID, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete announcement")
	}
	s.recordAudit(ctx, actorID, models.AuditActionDelete, id)
	return nil
}

func (s *AnnouncementService) recordAudit(ctx context.Context, actorID, action, resourceID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{Action: action, Resource: "announcement", ResourceID: &resourceID}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record announcement audit log", zap.Error(err))
	}
}
