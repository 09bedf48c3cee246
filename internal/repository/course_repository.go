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

// CourseRepository provides database access for courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository creates a new instance of CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses joined with their department name, optionally
// filtered by department.
func (r *CourseRepository) List(ctx context.Context, departmentID string) ([]models.CourseDetail, error) {
	query := `SELECT c.id, c.name, c.department_id, c.created_at, c.updated_at, d.name AS department_name
		FROM courses c
		JOIN departments d ON d.id = c.department_id`
	var args []interface{}
	if departmentID != "" {
		query += ` WHERE c.department_id = $1`
		args = append(args, departmentID)
	}
	query += ` ORDER BY c.name ASC`

	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// FindByID returns a course by identifier.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, name, department_id, created_at, updated_at FROM courses WHERE id = $1 LIMIT 1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course by id: %w", err)
	}
	return &course, nil
}

// Create inserts a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now

	const query = `INSERT INTO courses (id, name, department_id, created_at, updated_at) VALUES (:id, :name, :department_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update updates the mutable fields of a course.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET name = :name, department_id = :department_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// Delete removes a course.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM courses WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}

// Count returns the total number of courses.
func (r *CourseRepository) Count(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM courses`
	var total int
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		return 0, fmt.Errorf("count courses: %w", err)
	}
	return total, nil
}
