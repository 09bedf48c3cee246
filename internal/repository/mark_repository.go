package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/progressive-sch/progressive-api/internal/models"
)

// MarkRepository provides database access for recorded marks.
type MarkRepository struct {
	db *sqlx.DB
}

// NewMarkRepository creates a new instance of MarkRepository.
func NewMarkRepository(db *sqlx.DB) *MarkRepository {
	return &MarkRepository{db: db}
}

// Upsert inserts the mark or, when a row already exists for the same
// (student, subject, teacher, class, semester) tuple, overwrites its score
// and grade.
func (r *MarkRepository) Upsert(ctx context.Context, mark *models.Mark) error {
	if mark.ID == "" {
		mark.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if mark.RecordedAt.IsZero() {
		mark.RecordedAt = now
	}
	mark.UpdatedAt = now

	const query = `INSERT INTO marks (id, student_id, subject_id, teacher_id, class_id, semester_id, score, grade, recorded_at, updated_at)
		VALUES (:id, :student_id, :subject_id, :teacher_id, :class_id, :semester_id, :score, :grade, :recorded_at, :updated_at)
		ON CONFLICT (student_id, subject_id, teacher_id, class_id, semester_id)
		DO UPDATE SET score = EXCLUDED.score, grade = EXCLUDED.grade, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, mark); err != nil {
		return fmt.Errorf("upsert mark: %w", err)
	}
	return nil
}

func markFilterConditions(filter models.MarkFilter) ([]string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("m.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("m.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("m.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("m.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.SemesterID != "" {
		conditions = append(conditions, fmt.Sprintf("m.semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}
	return conditions, args
}

// ListDetails returns marks matching the filter joined with display names.
func (r *MarkRepository) ListDetails(ctx context.Context, filter models.MarkFilter) ([]models.MarkDetail, error) {
	query := `SELECT m.id, m.student_id, m.subject_id, m.teacher_id, m.class_id, m.semester_id, m.score, m.grade, m.recorded_at, m.updated_at,
		st.first_name || ' ' || st.last_name AS student_name,
		st.admission_number,
		s.name AS subject_name,
		t.first_name || ' ' || t.last_name AS teacher_name,
		cl.name AS class_name,
		sem.name AS semester_name
		FROM marks m
		JOIN users st ON st.id = m.student_id
		JOIN users t ON t.id = m.teacher_id
		JOIN subjects s ON s.id = m.subject_id
		JOIN classes cl ON cl.id = m.class_id
		JOIN semesters sem ON sem.id = m.semester_id`

	conditions, args := markFilterConditions(filter)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY st.admission_number ASC, s.name ASC`

	var marks []models.MarkDetail
	if err := r.db.SelectContext(ctx, &marks, query, args...); err != nil {
		return nil, fmt.Errorf("list mark details: %w", err)
	}
	return marks, nil
}

// Summary aggregates matching marks: total score, average and GPA rounded to
// two decimal places, and number of distinct subjects. The GPA CASE mirrors
// the grade boundaries in models.GradeForScore; unscored rows are excluded
// from both averages. All default to zero when nothing matches.
func (r *MarkRepository) Summary(ctx context.Context, filter models.MarkFilter) (*models.MarkSummary, error) {
	query := `SELECT COALESCE(SUM(m.score), 0) AS total,
		COALESCE(ROUND(AVG(m.score)::numeric, 2), 0) AS average,
		COALESCE(ROUND(AVG(CASE
			WHEN m.score IS NULL THEN NULL
			WHEN m.score >= 90 THEN 4.0
			WHEN m.score >= 80 THEN 3.0
			WHEN m.score >= 70 THEN 2.0
			WHEN m.score >= 60 THEN 1.0
			ELSE 0.0 END)::numeric, 2), 0) AS gpa,
		COUNT(DISTINCT m.subject_id) AS subjects_count
		FROM marks m`

	conditions, args := markFilterConditions(filter)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	var summary models.MarkSummary
	if err := r.db.GetContext(ctx, &summary, query, args...); err != nil {
		return nil, fmt.Errorf("mark summary: %w", err)
	}
	return &summary, nil
}

// Count returns the total number of recorded marks.
func (r *MarkRepository) Count(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM marks`
	var total int
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		return 0, fmt.Errorf("count marks: %w", err)
	}
	return total, nil
}
