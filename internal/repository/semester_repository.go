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

// SemesterRepository provides database access for semesters.
type SemesterRepository struct {
	db *sqlx.DB
}

// NewSemesterRepository creates a new instance of SemesterRepository.
func NewSemesterRepository(db *sqlx.DB) *SemesterRepository {
	return &SemesterRepository{db: db}
}

// List returns all semesters, most recent first.
func (r *SemesterRepository) List(ctx context.Context) ([]models.Semester, error) {
	const query = `SELECT id, name, start_date, end_date, created_at, updated_at FROM semesters ORDER BY start_date DESC`
	var semesters []models.Semester
	if err := r.db.SelectContext(ctx, &semesters, query); err != nil {
		return nil, fmt.Errorf("list semesters: %w", err)
	}
	return semesters, nil
}

// FindByID returns a semester by identifier.
func (r *SemesterRepository) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	const query = `SELECT id, name, start_date, end_date, created_at, updated_at FROM semesters WHERE id = $1 LIMIT 1`
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find semester by id: %w", err)
	}
	return &semester, nil
}

// Create inserts a new semester.
func (r *SemesterRepository) Create(ctx context.Context, semester *models.Semester) error {
	if semester.ID == "" {
		semester.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	semester.CreatedAt = now
	semester.UpdatedAt = now

	const query = `INSERT INTO semesters (id, name, start_date, end_date, created_at, updated_at) VALUES (:id, :name, :start_date, :end_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, semester); err != nil {
		return fmt.Errorf("create semester: %w", err)
	}
	return nil
}

// Update updates the mutable fields of a semester.
func (r *SemesterRepository) Update(ctx context.Context, semester *models.Semester) error {
	semester.UpdatedAt = time.Now().UTC()
	const query = `UPDATE semesters SET name = :name, start_date = :start_date, end_date = :end_date, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, semester); err != nil {
		return fmt.Errorf("update semester: %w", err)
	}
	return nil
}

// Delete removes a semester.
func (r *SemesterRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM semesters WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete semester: %w", err)
	}
	return nil
}

// Count returns the total number of semesters.
func (r *SemesterRepository) Count(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM semesters`
	var total int
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		return 0, fmt.Errorf("count semesters: %w", err)
	}
	return total, nil
}
