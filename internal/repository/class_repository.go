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

// ClassRepository provides database access for school classes.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository creates a new instance of ClassRepository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns classes joined with their course name, optionally filtered by
// course.
func (r *ClassRepository) List(ctx context.Context, courseID string) ([]models.SchoolClassDetail, error) {
	query := `SELECT cl.id, cl.name, cl.course_id, cl.created_at, cl.updated_at, c.name AS course_name
		FROM classes cl
		JOIN courses c ON c.id = cl.course_id`
	var args []interface{}
	if courseID != "" {
		query += ` WHERE cl.course_id = $1`
		args = append(args, courseID)
	}
	query += ` ORDER BY cl.name ASC`

	var classes []models.SchoolClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// FindByID returns a class by identifier.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.SchoolClass, error) {
	const query = `SELECT id, name, course_id, created_at, updated_at FROM classes WHERE id = $1 LIMIT 1`
	var class models.SchoolClass
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find class by id: %w", err)
	}
	return &class, nil
}

// Create inserts a new class.
func (r *ClassRepository) Create(ctx context.Context, class *models.SchoolClass) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now

	const query = `INSERT INTO classes (id, name, course_id, created_at, updated_at) VALUES (:id, :name, :course_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update updates the mutable fields of a class.
func (r *ClassRepository) Update(ctx context.Context, class *models.SchoolClass) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, course_id = :course_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// Delete removes a class.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM classes WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}

// Count returns the total number of classes.
func (r *ClassRepository) Count(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM classes`
	var total int
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		return 0, fmt.Errorf("count classes: %w", err)
	}
	return total, nil
}
