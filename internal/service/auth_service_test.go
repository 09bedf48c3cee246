package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/progressive-sch/progressive-api/internal/models"
)

type mockAuthRepo struct {
	mockUserRepo
	refreshTokens map[string]*models.RefreshToken
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	for _, token := range m.refreshTokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	copy := *token
	m.refreshTokens[token.Token] = &copy
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if rt, ok := m.refreshTokens[token]; ok {
		copy := *rt
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func newAuthService(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "progressive-api",
	})
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestLoginSuccessIssuesTokens(t *testing.T) {
	repo := &mockAuthRepo{mockUserRepo: mockUserRepo{users: map[string]*models.User{
		"u1": {ID: "u1", Email: "admin@progressive.sch", PasswordHash: hashOf(t, "secret"), Role: models.RoleAdmin, Active: true},
	}}}
	svc := newAuthService(repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@progressive.sch", Password: "secret"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, models.RoleAdmin, resp.User.Role)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	repo := &mockAuthRepo{mockUserRepo: mockUserRepo{users: map[string]*models.User{
		"u1": {ID: "u1", Email: "admin@progressive.sch", PasswordHash: hashOf(t, "secret"), Role: models.RoleAdmin, Active: true},
	}}}
	svc := newAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@progressive.sch", Password: "wrong"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid email or password")
}

func TestLoginInactiveAccount(t *testing.T) {
	repo := &mockAuthRepo{mockUserRepo: mockUserRepo{users: map[string]*models.User{
		"u1": {ID: "u1", Email: "gone@progressive.sch", PasswordHash: hashOf(t, "secret"), Role: models.RoleTeacher},
	}}}
	svc := newAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "gone@progressive.sch", Password: "secret"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inactive")
}

func TestRefreshTokenRotates(t *testing.T) {
	repo := &mockAuthRepo{mockUserRepo: mockUserRepo{users: map[string]*models.User{
		"u1": {ID: "u1", Email: "admin@progressive.sch", PasswordHash: hashOf(t, "secret"), Role: models.RoleAdmin, Active: true},
	}}}
	svc := newAuthService(repo)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@progressive.sch", Password: "secret"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The used token is revoked, replaying it fails.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	repo := &mockAuthRepo{mockUserRepo: mockUserRepo{users: map[string]*models.User{
		"u1": {ID: "u1", Email: "admin@progressive.sch", PasswordHash: hashOf(t, "old-pass"), Role: models.RoleAdmin, Active: true},
	}}}
	svc := newAuthService(repo)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@progressive.sch", Password: "old-pass"})
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "old-pass", NewPassword: "new-pass-1"})
	require.NoError(t, err)

	stored := repo.refreshTokens[login.RefreshToken]
	require.NotNil(t, stored)
	assert.True(t, stored.Revoked)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users["u1"].PasswordHash), []byte("new-pass-1")))
}

func TestValidateTokenRejectsTampered(t *testing.T) {
	svc := newAuthService(&mockAuthRepo{})
	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
}
