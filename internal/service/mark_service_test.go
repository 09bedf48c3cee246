package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/progressive-sch/progressive-api/internal/models"
	appErrors "github.com/progressive-sch/progressive-api/pkg/errors"
)

type mockMarkRepo struct {
	marks     map[string]*models.Mark
	upsertErr map[string]error
	details   []models.MarkDetail
	summary   models.MarkSummary
}

func markKey(m *models.Mark) string {
	return m.StudentID + "|" + m.SubjectID + "|" + m.TeacherID + "|" + m.ClassID + "|" + m.SemesterID
}

func (r *mockMarkRepo) Upsert(ctx context.Context, mark *models.Mark) error {
	if err, ok := r.upsertErr[mark.StudentID]; ok {
		return err
	}
	if r.marks == nil {
		r.marks = make(map[string]*models.Mark)
	}
	copy := *mark
	r.marks[markKey(mark)] = &copy
	return nil
}

func (r *mockMarkRepo) ListDetails(ctx context.Context, filter models.MarkFilter) ([]models.MarkDetail, error) {
	var out []models.MarkDetail
	for _, d := range r.details {
		if filter.StudentID != "" && d.StudentID != filter.StudentID {
			continue
		}
		if filter.TeacherID != "" && d.TeacherID != filter.TeacherID {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *mockMarkRepo) Summary(ctx context.Context, filter models.MarkFilter) (*models.MarkSummary, error) {
	s := r.summary
	return &s, nil
}

type mockAssignments struct {
	granted map[string]bool
}

func (a *mockAssignments) Exists(ctx context.Context, teacherID, subjectID, classID string) (bool, error) {
	return a.granted[teacherID+"|"+subjectID+"|"+classID], nil
}

func classID(id string) *string { return &id }

func newMarkService(repo *mockMarkRepo, assignments *mockAssignments, users *mockUserRepo) *MarkService {
	return NewMarkService(repo, assignments, users, users, validator.New(), zap.NewNop())
}

func TestUploadRejectsUnassignedTeacher(t *testing.T) {
	repo := &mockMarkRepo{}
	svc := newMarkService(repo, &mockAssignments{}, &mockUserRepo{})

	_, err := svc.Upload(context.Background(), "t1", models.RoleTeacher, models.UploadMarksRequest{
		SubjectID:  "su1",
		ClassID:    "c1",
		SemesterID: "se1",
		Entries:    []models.MarkEntry{{StudentID: "st1"}},
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotAssigned.Code, appErr.Code)
}

func TestUploadBatchCountsSavedSkippedFailed(t *testing.T) {
	users := &mockUserRepo{users: map[string]*models.User{
		"st1": {ID: "st1", Role: models.RoleStudent, ClassID: classID("c1")},
		"st2": {ID: "st2", Role: models.RoleStudent, ClassID: classID("other")},
		"st3": {ID: "st3", Role: models.RoleStudent, ClassID: classID("c1")},
	}}
	repo := &mockMarkRepo{upsertErr: map[string]error{"st3": sql.ErrConnDone}}
	assignments := &mockAssignments{granted: map[string]bool{"t1|su1|c1": true}}
	svc := newMarkService(repo, assignments, users)

	score := 85.0
	result, err := svc.Upload(context.Background(), "t1", models.RoleTeacher, models.UploadMarksRequest{
		SubjectID:  "su1",
		ClassID:    "c1",
		SemesterID: "se1",
		Entries: []models.MarkEntry{
			{StudentID: "st1", Score: &score},
			{StudentID: "st2", Score: &score},
			{StudentID: "st3", Score: &score},
			{StudentID: "missing", Score: &score},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Saved)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, 1, result.Failed)

	saved := repo.marks["st1|su1|t1|c1|se1"]
	require.NotNil(t, saved)
	require.NotNil(t, saved.Grade)
	assert.Equal(t, models.GradeB, *saved.Grade)
}

func TestUploadEmptyScoreLeavesExistingMark(t *testing.T) {
	users := &mockUserRepo{users: map[string]*models.User{
		"st1": {ID: "st1", Role: models.RoleStudent, ClassID: classID("c1")},
	}}
	repo := &mockMarkRepo{}
	assignments := &mockAssignments{granted: map[string]bool{"t1|su1|c1": true}}
	svc := newMarkService(repo, assignments, users)

	score := 85.0
	req := models.UploadMarksRequest{
		SubjectID:  "su1",
		ClassID:    "c1",
		SemesterID: "se1",
		Entries:    []models.MarkEntry{{StudentID: "st1", Score: &score}},
	}
	_, err := svc.Upload(context.Background(), "t1", models.RoleTeacher, req)
	require.NoError(t, err)

	req.Entries[0].Score = nil
	result, err := svc.Upload(context.Background(), "t1", models.RoleTeacher, req)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Saved)
	assert.Equal(t, 1, result.Skipped)

	saved := repo.marks["st1|su1|t1|c1|se1"]
	require.NotNil(t, saved)
	require.NotNil(t, saved.Score)
	assert.Equal(t, 85.0, *saved.Score)
	assert.Equal(t, models.GradeB, *saved.Grade)
}

func TestUploadEmptyScoreCreatesNoRow(t *testing.T) {
	users := &mockUserRepo{users: map[string]*models.User{
		"st1": {ID: "st1", Role: models.RoleStudent, ClassID: classID("c1")},
	}}
	repo := &mockMarkRepo{}
	assignments := &mockAssignments{granted: map[string]bool{"t1|su1|c1": true}}
	svc := newMarkService(repo, assignments, users)

	result, err := svc.Upload(context.Background(), "t1", models.RoleTeacher, models.UploadMarksRequest{
		SubjectID:  "su1",
		ClassID:    "c1",
		SemesterID: "se1",
		Entries:    []models.MarkEntry{{StudentID: "st1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Saved)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, repo.marks)
}

func TestUploadAdminActsOnBehalfOfTeacher(t *testing.T) {
	users := &mockUserRepo{users: map[string]*models.User{
		"t1":  {ID: "t1", Role: models.RoleTeacher},
		"st1": {ID: "st1", Role: models.RoleStudent, ClassID: classID("c1")},
	}}
	repo := &mockMarkRepo{}
	assignments := &mockAssignments{granted: map[string]bool{"t1|su1|c1": true}}
	svc := newMarkService(repo, assignments, users)

	score := 95.0
	result, err := svc.Upload(context.Background(), "admin-1", models.RoleAdmin, models.UploadMarksRequest{
		SubjectID:  "su1",
		ClassID:    "c1",
		SemesterID: "se1",
		TeacherID:  "t1",
		Entries:    []models.MarkEntry{{StudentID: "st1", Score: &score}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Saved)
	saved := repo.marks["st1|su1|t1|c1|se1"]
	require.NotNil(t, saved)
	assert.Equal(t, "t1", saved.TeacherID)
}

func TestUploadAdminRequiresTeacherID(t *testing.T) {
	svc := newMarkService(&mockMarkRepo{}, &mockAssignments{}, &mockUserRepo{})

	_, err := svc.Upload(context.Background(), "admin-1", models.RoleAdmin, models.UploadMarksRequest{
		SubjectID:  "su1",
		ClassID:    "c1",
		SemesterID: "se1",
		Entries:    []models.MarkEntry{{StudentID: "st1"}},
	})
	require.Error(t, err)
}

func TestUploadStudentForbidden(t *testing.T) {
	svc := newMarkService(&mockMarkRepo{}, &mockAssignments{}, &mockUserRepo{})

	_, err := svc.Upload(context.Background(), "st1", models.RoleStudent, models.UploadMarksRequest{
		SubjectID:  "su1",
		ClassID:    "c1",
		SemesterID: "se1",
		Entries:    []models.MarkEntry{{StudentID: "st1"}},
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestUploadIdempotentUpsert(t *testing.T) {
	users := &mockUserRepo{users: map[string]*models.User{
		"st1": {ID: "st1", Role: models.RoleStudent, ClassID: classID("c1")},
	}}
	repo := &mockMarkRepo{}
	assignments := &mockAssignments{granted: map[string]bool{"t1|su1|c1": true}}
	svc := newMarkService(repo, assignments, users)

	first, second := 70.0, 92.0
	req := models.UploadMarksRequest{
		SubjectID:  "su1",
		ClassID:    "c1",
		SemesterID: "se1",
		Entries:    []models.MarkEntry{{StudentID: "st1", Score: &first}},
	}
	_, err := svc.Upload(context.Background(), "t1", models.RoleTeacher, req)
	require.NoError(t, err)

	req.Entries[0].Score = &second
	_, err = svc.Upload(context.Background(), "t1", models.RoleTeacher, req)
	require.NoError(t, err)

	assert.Len(t, repo.marks, 1)
	saved := repo.marks["st1|su1|t1|c1|se1"]
	assert.Equal(t, 92.0, *saved.Score)
	assert.Equal(t, models.GradeA, *saved.Grade)
}

func TestListForViewerScopesByRole(t *testing.T) {
	repo := &mockMarkRepo{details: []models.MarkDetail{
		{Mark: models.Mark{ID: "m1", StudentID: "st1", TeacherID: "t1"}},
		{Mark: models.Mark{ID: "m2", StudentID: "st2", TeacherID: "t2"}},
	}}
	svc := newMarkService(repo, &mockAssignments{}, &mockUserRepo{})

	own, err := svc.ListForViewer(context.Background(), "st1", models.RoleStudent, models.MarkFilter{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "m1", own[0].ID)

	taught, err := svc.ListForViewer(context.Background(), "t2", models.RoleTeacher, models.MarkFilter{})
	require.NoError(t, err)
	require.Len(t, taught, 1)
	assert.Equal(t, "m2", taught[0].ID)

	all, err := svc.ListForViewer(context.Background(), "a1", models.RoleAdmin, models.MarkFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListForViewerDerivesGradePoints(t *testing.T) {
	score := 85.0
	repo := &mockMarkRepo{details: []models.MarkDetail{
		{Mark: models.Mark{ID: "m1", StudentID: "st1", Score: &score}},
		{Mark: models.Mark{ID: "m2", StudentID: "st1"}},
	}}
	svc := newMarkService(repo, &mockAssignments{}, &mockUserRepo{})

	marks, err := svc.ListForViewer(context.Background(), "st1", models.RoleStudent, models.MarkFilter{})
	require.NoError(t, err)
	require.Len(t, marks, 2)
	require.NotNil(t, marks[0].GradePoints)
	assert.Equal(t, 3.0, *marks[0].GradePoints)
	assert.Nil(t, marks[1].GradePoints)
}

func TestClassMarksListsUnscoredStudents(t *testing.T) {
	score := 91.0
	grade := models.GradeA
	users := &mockUserRepo{users: map[string]*models.User{
		"st1": {ID: "st1", Role: models.RoleStudent, ClassID: classID("c1"), FirstName: "Ada", LastName: "Obi"},
		"st2": {ID: "st2", Role: models.RoleStudent, ClassID: classID("c1"), FirstName: "Ben", LastName: "Eze"},
		"st3": {ID: "st3", Role: models.RoleStudent, ClassID: classID("other")},
	}}
	repo := &mockMarkRepo{details: []models.MarkDetail{{
		Mark: models.Mark{ID: "m1", StudentID: "st1", TeacherID: "t1", Score: &score, Grade: &grade},
	}}}
	assignments := &mockAssignments{granted: map[string]bool{"t1|su1|c1": true}}
	svc := newMarkService(repo, assignments, users)

	rows, err := svc.ClassMarks(context.Background(), "t1", models.RoleTeacher, "", "su1", "c1", "se1")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byStudent := make(map[string]models.ClassMarkRow, len(rows))
	for _, row := range rows {
		byStudent[row.StudentID] = row
	}
	scored := byStudent["st1"]
	require.NotNil(t, scored.Score)
	assert.Equal(t, 91.0, *scored.Score)
	require.NotNil(t, scored.GradePoints)
	assert.Equal(t, 4.0, *scored.GradePoints)

	unscored := byStudent["st2"]
	assert.Equal(t, "Ben Eze", unscored.StudentName)
	assert.Nil(t, unscored.Score)
	assert.Nil(t, unscored.Grade)
}
