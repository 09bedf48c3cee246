package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/progressive-sch/progressive-api/internal/models"
)

type mockSemesterRepo struct {
	semesters map[string]*models.Semester
}

func (m *mockSemesterRepo) List(ctx context.Context) ([]models.Semester, error) {
	var out []models.Semester
	for _, s := range m.semesters {
		out = append(out, *s)
	}
	return out, nil
}

func (m *mockSemesterRepo) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	if s, ok := m.semesters[id]; ok {
		copy := *s
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSemesterRepo) Create(ctx context.Context, semester *models.Semester) error {
	if m.semesters == nil {
		m.semesters = make(map[string]*models.Semester)
	}
	copy := *semester
	m.semesters[semester.ID] = &copy
	return nil
}

func (m *mockSemesterRepo) Update(ctx context.Context, semester *models.Semester) error {
	copy := *semester
	m.semesters[semester.ID] = &copy
	return nil
}

func (m *mockSemesterRepo) Delete(ctx context.Context, id string) error {
	delete(m.semesters, id)
	return nil
}

func newSemesterService(repo *mockSemesterRepo) *SemesterService {
	return NewSemesterService(repo, nil, validator.New(), zap.NewNop())
}

func TestSemesterCreateValidRange(t *testing.T) {
	svc := newSemesterService(&mockSemesterRepo{})

	semester, err := svc.Create(context.Background(), "admin-1", models.SemesterRequest{
		Name:      "Term 1",
		StartDate: "2026-01-05",
		EndDate:   "2026-04-10",
	})
	require.NoError(t, err)
	assert.Equal(t, "Term 1", semester.Name)
	assert.True(t, semester.StartDate.Before(semester.EndDate))
}

func TestSemesterCreateRejectsInvertedRange(t *testing.T) {
	svc := newSemesterService(&mockSemesterRepo{})

	_, err := svc.Create(context.Background(), "admin-1", models.SemesterRequest{
		Name:      "Term 1",
		StartDate: "2026-04-10",
		EndDate:   "2026-01-05",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not precede")
}

func TestSemesterCreateAllowsSingleDay(t *testing.T) {
	svc := newSemesterService(&mockSemesterRepo{})

	_, err := svc.Create(context.Background(), "admin-1", models.SemesterRequest{
		Name:      "Exam Day",
		StartDate: "2026-06-01",
		EndDate:   "2026-06-01",
	})
	require.NoError(t, err)
}

func TestSemesterUpdateMissing(t *testing.T) {
	svc := newSemesterService(&mockSemesterRepo{})

	_, err := svc.Update(context.Background(), "admin-1", "missing", models.SemesterRequest{
		Name:      "Term 2",
		StartDate: "2026-05-01",
		EndDate:   "2026-08-01",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
