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

// AnnouncementRepository provides database access for announcements.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository creates a new instance of AnnouncementRepository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

// List returns announcements visible to the filter's viewer role, newest
// first. Unfiltered listings skip the visibility clause.
func (r *AnnouncementRepository) List(ctx context.Context, filter models.FeedFilter) ([]models.Announcement, error) {
	query := `SELECT id, title, content, visibility, created_at, updated_at FROM announcements`
	var args []interface{}

	if !filter.Unfiltered {
		query += ` WHERE visibility IN ($1, $2)`
		args = append(args, models.VisibilityAll, roleVisibility(filter.ViewerRole))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var announcements []models.Announcement
	if err := r.db.SelectContext(ctx, &announcements, query, args...); err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	return announcements, nil
}

// FindByID returns an announcement by identifier.
func (r *AnnouncementRepository) FindByID(ctx context.Context, id string) (*models.Announcement, error) {
	const query = `SELECT id, title, content, visibility, created_at, updated_at FROM announcements WHERE id = $1 LIMIT 1`
	var announcement models.Announcement
	if err := r.db.GetContext(ctx, &announcement, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find announcement by id: %w", err)
	}
	return &announcement, nil
}

// Create inserts a new announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, announcement *models.Announcement) error {
	if announcement.ID == "" {
		announcement.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	announcement.CreatedAt = now
	announcement.UpdatedAt = now

	const query = `INSERT INTO announcements (id, title, content, visibility, created_at, updated_at) VALUES (:id, :title, :content, :visibility, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

// Update updates the mutable fields of an announcement.
func (r *AnnouncementRepository) Update(ctx context.Context, announcement *models.Announcement) error {
	announcement.UpdatedAt = time.Now().UTC()
	const query = `UPDATE announcements SET title = :title, content = :content, visibility = :visibility, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	return nil
}

// Delete removes an announcement.
func (r *AnnouncementRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM announcements WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	return nil
}

// Count returns the total number of announcements.
func (r *AnnouncementRepository) Count(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM announcements`
	var total int
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		return 0, fmt.Errorf("count announcements: %w", err)
	}
	return total, nil
}

// roleVisibility maps a viewer role to the visibility value aimed at it.
// Admin listings are expected to use Unfiltered instead.
func roleVisibility(role models.UserRole) models.Visibility {
	if role == models.RoleStudent {
		return models.VisibilityStudent
	}
	return models.VisibilityTeacher
}
