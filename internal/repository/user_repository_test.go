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

func newUserRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "password_hash", "first_name", "last_name", "role", "admission_number", "department_id", "course_id", "class_id", "semester_id", "active", "last_login", "created_at", "updated_at"})
}

func TestUserRepositoryFindByEmail(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT .+ FROM users WHERE LOWER\\(email\\) = LOWER\\(\\$1\\)").
		WithArgs("admin@progressive.sch").
		WillReturnRows(userRows().AddRow("u1", "admin@progressive.sch", "hash", "Site", "Admin", "ADMIN", nil, nil, nil, nil, nil, true, nil, time.Now(), time.Now()))

	user, err := repo.FindByEmail(context.Background(), "admin@progressive.sch")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryListFiltersByRoleAndClass(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	adm := "prog0001"
	classID := "c1"
	mock.ExpectQuery("SELECT .+ FROM users WHERE 1=1 AND role = \\$1 AND class_id = \\$2 ORDER BY created_at DESC LIMIT 20 OFFSET 0").
		WithArgs("STUDENT", "c1").
		WillReturnRows(userRows().AddRow("u2", "prog0001@progstudent.sch", "hash", "Jane", "Doe", "STUDENT", &adm, nil, nil, &classID, nil, true, nil, time.Now(), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE 1=1 AND role = $1 AND class_id = $2")).
		WithArgs("STUDENT", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	users, total, err := repo.List(context.Background(), models.UserFilter{Role: models.RoleStudent, ClassID: "c1"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
	require.NotNil(t, users[0].AdmissionNumber)
	assert.Equal(t, "prog0001", *users[0].AdmissionNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryListAdmissionNumbers(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT admission_number FROM users WHERE admission_number LIKE $1 || '%'")).
		WithArgs("prog").
		WillReturnRows(sqlmock.NewRows([]string{"admission_number"}).AddRow("prog0001").AddRow("prog0003"))

	numbers, err := repo.ListAdmissionNumbers(context.Background(), "prog")
	require.NoError(t, err)
	assert.Equal(t, []string{"prog0001", "prog0003"}, numbers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateAndDelete(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{Email: "t@progressive.sch", Role: models.RoleTeacher, FirstName: "Tom", LastName: "Reed", Active: true}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.NotEmpty(t, user.ID)

	mock.ExpectExec("UPDATE users SET active = FALSE").
		WithArgs(user.ID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Delete(context.Background(), user.ID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryRefreshTokenLifecycle(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").
		WillReturnResult(sqlmock.NewResult(1, 1))

	token := &models.RefreshToken{UserID: "u1", Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, repo.CreateRefreshToken(context.Background(), token))

	mock.ExpectQuery("SELECT .+ FROM refresh_tokens WHERE token = \\$1").
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at", "revoked", "revoked_at", "ip_address", "user_agent"}).
			AddRow(token.ID, "u1", "tok", token.ExpiresAt, time.Now(), false, nil, "", ""))

	found, err := repo.FindRefreshToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "u1", found.UserID)

	mock.ExpectExec("UPDATE refresh_tokens SET revoked = TRUE").
		WithArgs(token.ID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.RevokeRefreshToken(context.Background(), token.ID, time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
