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

type mockAssignmentRepo struct {
	assignments map[string]*models.TeacherAssignment
	created     int
}

func assignmentKey(teacherID, subjectID, classID string) string {
	return teacherID + "|" + subjectID + "|" + classID
}

func (r *mockAssignmentRepo) ListAll(ctx context.Context) ([]models.TeacherAssignmentDetail, error) {
	var out []models.TeacherAssignmentDetail
	for _, a := range r.assignments {
		out = append(out, models.TeacherAssignmentDetail{TeacherAssignment: *a})
	}
	return out, nil
}

func (r *mockAssignmentRepo) ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherAssignmentDetail, error) {
	var out []models.TeacherAssignmentDetail
	for _, a := range r.assignments {
		if a.TeacherID == teacherID {
			out = append(out, models.TeacherAssignmentDetail{TeacherAssignment: *a})
		}
	}
	return out, nil
}

func (r *mockAssignmentRepo) FindByID(ctx context.Context, id string) (*models.TeacherAssignment, error) {
	for _, a := range r.assignments {
		if a.ID == id {
			copy := *a
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *mockAssignmentRepo) FindByKey(ctx context.Context, teacherID, subjectID, classID string) (*models.TeacherAssignment, error) {
	if a, ok := r.assignments[assignmentKey(teacherID, subjectID, classID)]; ok {
		copy := *a
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *mockAssignmentRepo) Exists(ctx context.Context, teacherID, subjectID, classID string) (bool, error) {
	_, ok := r.assignments[assignmentKey(teacherID, subjectID, classID)]
	return ok, nil
}

func (r *mockAssignmentRepo) Create(ctx context.Context, assignment *models.TeacherAssignment) error {
	if r.assignments == nil {
		r.assignments = make(map[string]*models.TeacherAssignment)
	}
	if assignment.ID == "" {
		assignment.ID = "as-" + assignment.TeacherID
	}
	copy := *assignment
	r.assignments[assignmentKey(assignment.TeacherID, assignment.SubjectID, assignment.ClassID)] = &copy
	r.created++
	return nil
}

func (r *mockAssignmentRepo) Delete(ctx context.Context, id string) error {
	for key, a := range r.assignments {
		if a.ID == id {
			delete(r.assignments, key)
			return nil
		}
	}
	return sql.ErrNoRows
}

type mockSubjectLookup struct {
	subjects map[string]*models.Subject
}

func (m *mockSubjectLookup) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	if s, ok := m.subjects[id]; ok {
		copy := *s
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

type mockClassLookup struct {
	classes map[string]*models.SchoolClass
}

func (m *mockClassLookup) FindByID(ctx context.Context, id string) (*models.SchoolClass, error) {
	if c, ok := m.classes[id]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func newAssignmentService(repo *mockAssignmentRepo, users *mockUserRepo) *AssignmentService {
	subjects := &mockSubjectLookup{subjects: map[string]*models.Subject{
		"subj-1": {ID: "subj-1", Name: "Mathematics"},
	}}
	classes := &mockClassLookup{classes: map[string]*models.SchoolClass{
		"class-1": {ID: "class-1", Name: "SS1 A"},
	}}
	return NewAssignmentService(repo, users, subjects, classes, users, validator.New(), zap.NewNop())
}

func assignmentUsers() *mockUserRepo {
	return &mockUserRepo{users: map[string]*models.User{
		"t1": {ID: "t1", Role: models.RoleTeacher},
		"t2": {ID: "t2", Role: models.RoleTeacher},
		"s1": {ID: "s1", Role: models.RoleStudent},
	}}
}

func TestAssignmentCreateGrantsNew(t *testing.T) {
	repo := &mockAssignmentRepo{}
	svc := newAssignmentService(repo, assignmentUsers())

	created, err := svc.Create(context.Background(), "t1", models.AssignmentRequest{
		TeacherID: "t1", SubjectID: "subj-1", ClassID: "class-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 1, repo.created)
}

func TestAssignmentCreateReturnsExistingOnDuplicate(t *testing.T) {
	repo := &mockAssignmentRepo{}
	svc := newAssignmentService(repo, assignmentUsers())

	req := models.AssignmentRequest{TeacherID: "t1", SubjectID: "subj-1", ClassID: "class-1"}
	first, err := svc.Create(context.Background(), "t1", req)
	require.NoError(t, err)

	second, err := svc.Create(context.Background(), "t1", req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.created)
}

func TestAssignmentCreateRejectsNonTeacher(t *testing.T) {
	svc := newAssignmentService(&mockAssignmentRepo{}, assignmentUsers())

	_, err := svc.Create(context.Background(), "admin-1", models.AssignmentRequest{
		TeacherID: "s1", SubjectID: "subj-1", ClassID: "class-1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a teacher")
}

func TestAssignmentCreateRejectsUnknownSubject(t *testing.T) {
	svc := newAssignmentService(&mockAssignmentRepo{}, assignmentUsers())

	_, err := svc.Create(context.Background(), "t1", models.AssignmentRequest{
		TeacherID: "t1", SubjectID: "subj-missing", ClassID: "class-1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subject does not exist")
}

func TestAssignmentDeleteOwnerOnly(t *testing.T) {
	repo := &mockAssignmentRepo{}
	svc := newAssignmentService(repo, assignmentUsers())

	created, err := svc.Create(context.Background(), "t1", models.AssignmentRequest{
		TeacherID: "t1", SubjectID: "subj-1", ClassID: "class-1",
	})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), "t2", models.RoleTeacher, created.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another teacher")

	require.NoError(t, svc.Delete(context.Background(), "t1", models.RoleTeacher, created.ID))
}

func TestAssignmentDeleteAdminBypassesOwnership(t *testing.T) {
	repo := &mockAssignmentRepo{}
	svc := newAssignmentService(repo, assignmentUsers())

	created, err := svc.Create(context.Background(), "t1", models.AssignmentRequest{
		TeacherID: "t1", SubjectID: "subj-1", ClassID: "class-1",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "admin-1", models.RoleAdmin, created.ID))

	exists, err := svc.Exists(context.Background(), "t1", "subj-1", "class-1")
	require.NoError(t, err)
	assert.False(t, exists)
}
