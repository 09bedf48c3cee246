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

type eventRepository interface {
	List(ctx context.Context, filter models.FeedFilter) ([]models.Event, error)
	FindByID(ctx context.Context, id string) (*models.Event, error)
	Create(ctx context.Context, event *models.Event) error
	Update(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, id string) error
}

// EventService publishes role-scoped events.
type EventService struct {
	repo      eventRepository
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEventService constructs an EventService instance.
func NewEventService(repo eventRepository, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &EventService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// ListForViewer returns events visible to the caller's role. Admins see
// everything.
func (s *EventService) ListForViewer(ctx context.Context, viewerRole models.UserRole, limit int) ([]models.Event, error) {
	filter := models.FeedFilter{ViewerRole: viewerRole, Unfiltered: viewerRole == models.RoleAdmin, Limit: limit}
	events, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	return events, nil
}

// Get returns an event if the caller's role may see it.
func (s *EventService) Get(ctx context.Context, viewerRole models.UserRole, id string) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	if !event.Visibility.VisibleTo(viewerRole) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}
	return event, nil
}

// Create publishes an event.
func (s *EventService) Create(ctx context.Context, actorID string, req models.EventRequest) (*models.Event, error) {
	date, err := s.parse(req)
	if err != nil {
		return nil, err
	}

	event := &models.Event{Title: req.Title, Description: req.Description, Date: date, Visibility: req.Visibility}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}
	s.recordAudit(ctx, actorID, models.AuditActionCreate, event.ID)
	return event, nil
}

// Update edits an event.
func (s *EventService) Update(ctx context.Context, actorID, id string, req models.EventRequest) (*models.Event, error) {
	date, err := s.parse(req)
	if err != nil {
		return nil, err
	}

	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}

	event.Title = req.Title
	event.Description = req.Description
	event.Date = date
	event.Visibility = req.Visibility
	if err := s.repo.Update(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update event")
	}
	s.recordAudit(ctx, actorID, models.AuditActionUpdate, event.ID)
	return event, nil
}

// Delete removes an event.
func (s *EventService) Delete(ctx context.Context, actorID, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete event")
	}
	s.recordAudit(ctx, actorID, models.AuditActionDelete, id)
	return nil
}

func (s *EventService) parse(req models.EventRequest) (time.Time, error) {
	if err := s.validator.Struct(req); err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid event date")
	}
	return date, nil
}

func (s *EventService) recordAudit(ctx context.Context, actorID, action, resourceID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{Action: action, Resource: "event", ResourceID: &resourceID}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record event audit log", zap.Error(err))
	}
}
