package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/progressive-sch/progressive-api/internal/models"
)

// EventRepository provides database access for events.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository creates a new instance of EventRepository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// List returns events visible to the filter's viewer role ordered by date.
// Unfiltered listings skip the visibility clause.
func (r *EventRepository) List(ctx context.Context, filter models.FeedFilter) ([]models.Event, error) {
	query := `SELECT id, title, description, date, visibility, created_at, updated_at FROM events`
	var args []interface{}

	if !filter.Unfiltered {
		query += ` WHERE visibility IN ($1, $2)`
		args = append(args, models.VisibilityAll, roleVisibility(filter.ViewerRole))
	}
	query += ` ORDER BY date DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// FindByID returns an event by identifier.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.Event, error) {
	const query = `SELECT id, title, description, date, visibility, created_at, updated_at FROM events WHERE id = $1 LIMIT 1`
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find event by id: %w", err)
	}
	return &event, nil
}

// Create inserts a new event.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now

	const query = `INSERT INTO events (id, title, description, date, visibility, created_at, updated_at) VALUES (:id, :title, :description, :date, :visibility, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// Update updates the mutable fields of an event.
func (r *EventRepository) Update(ctx context.Context, event *models.Event) error {
	event.UpdatedAt = time.Now().UTC()
	const query = `UPDATE events SET title = :title, description = :description, date = :date, visibility = :visibility, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// Delete removes an event.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM events WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// Count returns the total number of events.
func (r *EventRepository) Count(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM events`
	var total int
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return total, nil
}
