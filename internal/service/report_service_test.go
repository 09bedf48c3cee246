package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/progressive-sch/progressive-api/internal/models"
)

type mockSemesterLookup struct {
	semesters map[string]*models.Semester
}

func (m *mockSemesterLookup) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	if s, ok := m.semesters[id]; ok {
		copy := *s
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func admission(a string) *string { return &a }

func newReportService(marks *mockMarkRepo, users *mockUserRepo, semesters *mockSemesterLookup) *ReportService {
	return NewReportService(marks, users, semesters, nil, nil, nil, zap.NewNop())
}

func TestStudentReportSingleSubjectAggregate(t *testing.T) {
	score := 85.0
	grade := models.GradeB
	users := &mockUserRepo{users: map[string]*models.User{
		"st1": {ID: "st1", FirstName: "Jane", LastName: "Doe", Role: models.RoleStudent, AdmissionNumber: admission("prog0001")},
	}}
	marks := &mockMarkRepo{
		details: []models.MarkDetail{{
			Mark:        models.Mark{ID: "m1", StudentID: "st1", Score: &score, Grade: &grade},
			SubjectName: "Mathematics",
		}},
		summary: models.MarkSummary{Total: 85, Average: 85.00, GPA: 3.0, SubjectsCount: 1},
	}
	svc := newReportService(marks, users, &mockSemesterLookup{})

	report, err := svc.StudentReport(context.Background(), "st1", models.RoleStudent, "st1", "")
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, models.GradeB, *report.Rows[0].Grade)
	require.NotNil(t, report.Rows[0].GradePoints)
	assert.Equal(t, 3.0, *report.Rows[0].GradePoints)
	assert.Equal(t, 85.0, report.Summary.Total)
	assert.Equal(t, 85.00, report.Summary.Average)
	assert.Equal(t, 3.0, report.Summary.GPA)
	assert.Equal(t, 1, report.Summary.SubjectsCount)

	encoded, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"grade_points":3`)
	assert.Contains(t, string(encoded), `"gpa":3`)
}

func TestStudentReportForbiddenForOtherStudent(t *testing.T) {
	svc := newReportService(&mockMarkRepo{}, &mockUserRepo{}, &mockSemesterLookup{})

	_, err := svc.StudentReport(context.Background(), "st1", models.RoleStudent, "st2", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "their own results")
}

func TestStudentReportPDFFilenameUsesAdmissionNumber(t *testing.T) {
	users := &mockUserRepo{users: map[string]*models.User{
		"st1": {ID: "st1", FirstName: "Jane", LastName: "Doe", Role: models.RoleStudent, AdmissionNumber: admission("prog0001")},
	}}
	svc := newReportService(&mockMarkRepo{}, users, &mockSemesterLookup{})

	payload, filename, err := svc.StudentReportPDF(context.Background(), "admin-1", models.RoleAdmin, "st1", "")
	require.NoError(t, err)
	assert.Equal(t, "prog0001_results.pdf", filename)
	assert.NotEmpty(t, payload)
	assert.Equal(t, "%PDF", string(payload[:4]))
}

func TestStudentReportMissingScoresRenderDash(t *testing.T) {
	users := &mockUserRepo{users: map[string]*models.User{
		"st1": {ID: "st1", FirstName: "Jane", LastName: "Doe", Role: models.RoleStudent, AdmissionNumber: admission("prog0001")},
	}}
	marks := &mockMarkRepo{details: []models.MarkDetail{{
		Mark:        models.Mark{ID: "m1", StudentID: "st1"},
		SubjectName: "History",
	}}}
	svc := newReportService(marks, users, &mockSemesterLookup{})

	report, err := svc.StudentReport(context.Background(), "st1", models.RoleStudent, "st1", "")
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.Nil(t, report.Rows[0].Score)
	assert.Nil(t, report.Rows[0].Grade)

	data := studentReportDataset(report)
	require.Len(t, data.Rows, 1)
	assert.Equal(t, "-", data.Rows[0]["Score"])
	assert.Equal(t, "-", data.Rows[0]["Grade"])
	assert.Equal(t, "-", data.Rows[0]["Points"])
}
