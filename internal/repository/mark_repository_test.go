package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progressive-sch/progressive-api/internal/models"
)

func newMarkRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestMarkRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newMarkRepoMock(t)
	defer cleanup()
	repo := NewMarkRepository(db)

	mock.ExpectExec("INSERT INTO marks .+ ON CONFLICT \\(student_id, subject_id, teacher_id, class_id, semester_id\\)").
		WillReturnResult(sqlmock.NewResult(1, 1))

	mark := &models.Mark{StudentID: "st1", SubjectID: "su1", TeacherID: "t1", ClassID: "c1", SemesterID: "se1"}
	score := 85.0
	mark.SetScore(&score)

	require.NoError(t, repo.Upsert(context.Background(), mark))
	assert.NotEmpty(t, mark.ID)
	require.NotNil(t, mark.Grade)
	assert.Equal(t, models.GradeB, *mark.Grade)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRepositoryListDetails(t *testing.T) {
	db, mock, cleanup := newMarkRepoMock(t)
	defer cleanup()
	repo := NewMarkRepository(db)

	score := 92.5
	grade := "A"
	adm := "prog0001"
	rows := sqlmock.NewRows([]string{"id", "student_id", "subject_id", "teacher_id", "class_id", "semester_id", "score", "grade", "recorded_at", "updated_at", "student_name", "admission_number", "subject_name", "teacher_name", "class_name", "semester_name"}).
		AddRow("m1", "st1", "su1", "t1", "c1", "se1", &score, &grade, time.Now(), time.Now(), "Jane Doe", &adm, "Mathematics", "Tom Reed", "Form 1A", "Term 1")

	mock.ExpectQuery("SELECT .+ FROM marks m .+ WHERE m.student_id = \\$1 AND m.semester_id = \\$2").
		WithArgs("st1", "se1").
		WillReturnRows(rows)

	marks, err := repo.ListDetails(context.Background(), models.MarkFilter{StudentID: "st1", SemesterID: "se1"})
	require.NoError(t, err)
	require.Len(t, marks, 1)
	assert.Equal(t, "Mathematics", marks[0].SubjectName)
	assert.Equal(t, "A", *marks[0].Grade)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRepositorySummaryDefaultsToZero(t *testing.T) {
	db, mock, cleanup := newMarkRepoMock(t)
	defer cleanup()
	repo := NewMarkRepository(db)

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(m.score\\), 0\\)").
		WithArgs("st1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "average", "gpa", "subjects_count"}).AddRow(0, 0, 0, 0))

	summary, err := repo.Summary(context.Background(), models.MarkFilter{StudentID: "st1"})
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.Zero(t, summary.Average)
	assert.Zero(t, summary.GPA)
	assert.Zero(t, summary.SubjectsCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRepositorySummaryAggregatesGPA(t *testing.T) {
	db, mock, cleanup := newMarkRepoMock(t)
	defer cleanup()
	repo := NewMarkRepository(db)

	mock.ExpectQuery(`(?s)SELECT COALESCE\(SUM\(m.score\), 0\).+WHEN m.score >= 80 THEN 3.0`).
		WithArgs("st1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "average", "gpa", "subjects_count"}).AddRow(85, 85, 3.0, 1))

	summary, err := repo.Summary(context.Background(), models.MarkFilter{StudentID: "st1"})
	require.NoError(t, err)
	assert.Equal(t, 3.0, summary.GPA)
	assert.Equal(t, 1, summary.SubjectsCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
