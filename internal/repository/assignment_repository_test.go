package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progressive-sch/progressive-api/internal/models"
)

func newAssignmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAssignmentRepositoryExists(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM teacher_assignments WHERE teacher_id = $1 AND subject_id = $2 AND class_id = $3 LIMIT 1")).
		WithArgs("t1", "su1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	exists, err := repo.Exists(context.Background(), "t1", "su1", "c1")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM teacher_assignments WHERE teacher_id = $1 AND subject_id = $2 AND class_id = $3 LIMIT 1")).
		WithArgs("t1", "su2", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	exists, err = repo.Exists(context.Background(), "t1", "su2", "c1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryListByTeacher(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "teacher_id", "subject_id", "class_id", "created_at", "teacher_name", "subject_name", "class_name"}).
		AddRow("a1", "t1", "su1", "c1", time.Now(), "Tom Reed", "Mathematics", "Form 1A")
	mock.ExpectQuery("SELECT .+ FROM teacher_assignments ta .+ WHERE ta.teacher_id = \\$1").
		WithArgs("t1").
		WillReturnRows(rows)

	assignments, err := repo.ListByTeacher(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, "Mathematics", assignments[0].SubjectName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec("INSERT INTO teacher_assignments").
		WillReturnResult(sqlmock.NewResult(1, 1))

	assignment := &models.TeacherAssignment{TeacherID: "t1", SubjectID: "su1", ClassID: "c1"}
	require.NoError(t, repo.Create(context.Background(), assignment))
	assert.NotEmpty(t, assignment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
