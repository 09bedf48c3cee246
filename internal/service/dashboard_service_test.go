package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/progressive-sch/progressive-api/internal/models"
	appErrors "github.com/progressive-sch/progressive-api/pkg/errors"
)

type countingCounter struct {
	value int
	calls int
}

func (c *countingCounter) Count(ctx context.Context) (int, error) {
	c.calls++
	return c.value, nil
}

type stubRoleCounter struct {
	byRole map[models.UserRole]int
}

func (c *stubRoleCounter) CountByRole(ctx context.Context, role models.UserRole) (int, error) {
	return c.byRole[role], nil
}

type stubFeeds struct {
	announcements []models.Announcement
}

func (f *stubFeeds) ListForViewer(ctx context.Context, viewerRole models.UserRole, limit int) ([]models.Announcement, error) {
	return f.announcements, nil
}

type stubEventFeeds struct {
	events []models.Event
}

func (f *stubEventFeeds) ListForViewer(ctx context.Context, viewerRole models.UserRole, limit int) ([]models.Event, error) {
	return f.events, nil
}

type stubAssignmentLister struct {
	assignments []models.TeacherAssignmentDetail
}

func (l *stubAssignmentLister) ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherAssignmentDetail, error) {
	return l.assignments, nil
}

type stubRecentMarks struct {
	marks []models.MarkDetail
}

func (l *stubRecentMarks) ListForViewer(ctx context.Context, viewerID string, viewerRole models.UserRole, filter models.MarkFilter) ([]models.MarkDetail, error) {
	return l.marks, nil
}

type memoryCache struct {
	entries map[string][]byte
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c.entries == nil {
		c.entries = make(map[string][]byte)
	}
	c.entries[key] = raw
	return nil
}

func (c *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.entries = nil
	return nil
}

func newDashboardService(departments *countingCounter, cache dashboardCache) *DashboardService {
	plain := func(n int) *countingCounter { return &countingCounter{value: n} }
	return NewDashboardService(DashboardDeps{
		Departments:   departments,
		Courses:       plain(2),
		Classes:       plain(6),
		Subjects:      plain(12),
		Semesters:     plain(3),
		Marks:         plain(240),
		AnnCounter:    plain(4),
		EventCounter:  plain(5),
		Users:         &stubRoleCounter{byRole: map[models.UserRole]int{models.RoleStudent: 180, models.RoleTeacher: 14}},
		Announcements: &stubFeeds{announcements: []models.Announcement{{ID: "ann-1", Title: "Resumption"}}},
		Events:        &stubEventFeeds{},
		Assignments:   &stubAssignmentLister{assignments: []models.TeacherAssignmentDetail{{SubjectName: "Mathematics"}}},
		RecentMarks:   &stubRecentMarks{},
		Cache:         cache,
		Metrics:       NewMetricsService(),
	}, DashboardConfig{CacheTTL: time.Minute, FeedLimit: 5}, zap.NewNop())
}

func TestAdminDashboardReflectsRepositoryCounts(t *testing.T) {
	departments := &countingCounter{value: 3}
	svc := newDashboardService(departments, nil)

	payload, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, payload.Counts.Departments)
	assert.Equal(t, 12, payload.Counts.Subjects)
	assert.Equal(t, 240, payload.Counts.Marks)
	assert.Equal(t, 180, payload.Counts.Students)
	assert.Equal(t, 14, payload.Counts.Teachers)
	require.Len(t, payload.Announcements, 1)
	assert.Equal(t, "Resumption", payload.Announcements[0].Title)
}

func TestAdminDashboardServedFromCache(t *testing.T) {
	departments := &countingCounter{value: 3}
	svc := newDashboardService(departments, &memoryCache{})

	_, err := svc.Admin(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, departments.calls)

	cached, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, departments.calls)
	assert.Equal(t, 3, cached.Counts.Departments)
}

func TestDashboardInvalidateDropsCache(t *testing.T) {
	departments := &countingCounter{value: 3}
	svc := newDashboardService(departments, &memoryCache{})

	_, err := svc.Admin(context.Background())
	require.NoError(t, err)

	svc.Invalidate(context.Background())

	_, err = svc.Admin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, departments.calls)
}

func TestTeacherDashboardListsAssignments(t *testing.T) {
	svc := newDashboardService(&countingCounter{}, nil)

	payload, err := svc.Teacher(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, payload.Assignments, 1)
	assert.Equal(t, "Mathematics", payload.Assignments[0].SubjectName)
}
