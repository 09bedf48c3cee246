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

const assignmentDetailQuery = `SELECT ta.id, ta.teacher_id, ta.subject_id, ta.class_id, ta.created_at,
	t.first_name || ' ' || t.last_name AS teacher_name,
	s.name AS subject_name,
	cl.name AS class_name
	FROM teacher_assignments ta
	JOIN users t ON t.id = ta.teacher_id
	JOIN subjects s ON s.id = ta.subject_id
	JOIN classes cl ON cl.id = ta.class_id`

// AssignmentRepository provides database access for teaching assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository creates a new instance of AssignmentRepository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// ListAll returns every assignment with display names.
func (r *AssignmentRepository) ListAll(ctx context.Context) ([]models.TeacherAssignmentDetail, error) {
	query := assignmentDetailQuery + ` ORDER BY ta.created_at DESC`
	var assignments []models.TeacherAssignmentDetail
	if err := r.db.SelectContext(ctx, &assignments, query); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

// ListByTeacher returns the assignments held by one teacher.
func (r *AssignmentRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherAssignmentDetail, error) {
	query := assignmentDetailQuery + ` WHERE ta.teacher_id = $1 ORDER BY ta.created_at DESC`
	var assignments []models.TeacherAssignmentDetail
	if err := r.db.SelectContext(ctx, &assignments, query, teacherID); err != nil {
		return nil, fmt.Errorf("list assignments by teacher: %w", err)
	}
	return assignments, nil
}

// FindByID returns an assignment by identifier.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.TeacherAssignment, error) {
	const query = `SELECT id, teacher_id, subject_id, class_id, created_at FROM teacher_assignments WHERE id = $1 LIMIT 1`
	var assignment models.TeacherAssignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find assignment by id: %w", err)
	}
	return &assignment, nil
}

// FindByKey returns the assignment matching the (teacher, subject, class)
// natural key.
func (r *AssignmentRepository) FindByKey(ctx context.Context, teacherID, subjectID, classID string) (*models.TeacherAssignment, error) {
	const query = `SELECT id, teacher_id, subject_id, class_id, created_at FROM teacher_assignments WHERE teacher_id = $1 AND subject_id = $2 AND class_id = $3 LIMIT 1`
	var assignment models.TeacherAssignment
	if err := r.db.GetContext(ctx, &assignment, query, teacherID, subjectID, classID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find assignment by key: %w", err)
	}
	return &assignment, nil
}

// Exists reports whether the teacher holds the (subject, class) assignment.
func (r *AssignmentRepository) Exists(ctx context.Context, teacherID, subjectID, classID string) (bool, error) {
	const query = `SELECT 1 FROM teacher_assignments WHERE teacher_id = $1 AND subject_id = $2 AND class_id = $3 LIMIT 1`
	var one int
	if err := r.db.GetContext(ctx, &one, query, teacherID, subjectID, classID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("assignment exists: %w", err)
	}
	return true, nil
}

// Create inserts a new assignment.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.TeacherAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO teacher_assignments (id, teacher_id, subject_id, class_id, created_at) VALUES (:id, :teacher_id, :subject_id, :class_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// Delete removes an assignment.
func (r *AssignmentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM teacher_assignments WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}
