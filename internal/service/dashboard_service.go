package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/progressive-sch/progressive-api/internal/models"
	appErrors "github.com/progressive-sch/progressive-api/pkg/errors"
)

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type entityCounter interface {
	Count(ctx context.Context) (int, error)
}

type roleCounter interface {
	CountByRole(ctx context.Context, role models.UserRole) (int, error)
}

type feedLister interface {
	ListForViewer(ctx context.Context, viewerRole models.UserRole, limit int) ([]models.Announcement, error)
}

type eventFeedLister interface {
	ListForViewer(ctx context.Context, viewerRole models.UserRole, limit int) ([]models.Event, error)
}

type recentMarkLister interface {
	ListForViewer(ctx context.Context, viewerID string, viewerRole models.UserRole, filter models.MarkFilter) ([]models.MarkDetail, error)
}

type assignmentLister interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherAssignmentDetail, error)
}

// DashboardConfig tunes dashboard caching.
type DashboardConfig struct {
	CacheTTL  time.Duration
	FeedLimit int
}

// DashboardService composes role-specific landing payloads and caches them
// in Redis.
type DashboardService struct {
	departments   entityCounter
	courses       entityCounter
	classes       entityCounter
	subjects      entityCounter
	semesters     entityCounter
	marks         entityCounter
	annCounter    entityCounter
	eventCounter  entityCounter
	users         roleCounter
	announcements feedLister
	events        eventFeedLister
	assignments   assignmentLister
	recentMarks   recentMarkLister
	cache         dashboardCache
	metrics       *MetricsService
	config        DashboardConfig
	logger        *zap.Logger
}

// DashboardDeps bundles the collaborators of the dashboard service.
type DashboardDeps struct {
	Departments   entityCounter
	Courses       entityCounter
	Classes       entityCounter
	Subjects      entityCounter
	Semesters     entityCounter
	Marks         entityCounter
	AnnCounter    entityCounter
	EventCounter  entityCounter
	Users         roleCounter
	Announcements feedLister
	Events        eventFeedLister
	Assignments   assignmentLister
	RecentMarks   recentMarkLister
	Cache         dashboardCache
	Metrics       *MetricsService
}

// NewDashboardService constructs a DashboardService instance.
func NewDashboardService(deps DashboardDeps, config DashboardConfig, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}
	if config.FeedLimit <= 0 {
		config.FeedLimit = 5
	}
	return &DashboardService{
		departments:   deps.Departments,
		courses:       deps.Courses,
		classes:       deps.Classes,
		subjects:      deps.Subjects,
		semesters:     deps.Semesters,
		marks:         deps.Marks,
		annCounter:    deps.AnnCounter,
		eventCounter:  deps.EventCounter,
		users:         deps.Users,
		announcements: deps.Announcements,
		events:        deps.Events,
		assignments:   deps.Assignments,
		recentMarks:   deps.RecentMarks,
		cache:         deps.Cache,
		metrics:       deps.Metrics,
		config:        config,
		logger:        logger,
	}
}

// Admin assembles the admin landing payload with entity counts and the
// latest feed entries.
func (s *DashboardService) Admin(ctx context.Context) (*models.AdminDashboard, error) {
	const key = "dashboard:admin"
	var cached models.AdminDashboard
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	counts := models.EntityCounts{}
	counters := []struct {
		dest    *int
		counter entityCounter
	}{
		{&counts.Departments, s.departments},
		{&counts.Courses, s.courses},
		{&counts.Classes, s.classes},
		{&counts.Subjects, s.subjects},
		{&counts.Semesters, s.semesters},
		{&counts.Marks, s.marks},
		{&counts.Announcements, s.annCounter},
		{&counts.Events, s.eventCounter},
	}
	for _, c := range counters {
		n, err := c.counter.Count(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count entities")
		}
		*c.dest = n
	}

	students, err := s.users.CountByRole(ctx, models.RoleStudent)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	counts.Students = students

	teachers, err := s.users.CountByRole(ctx, models.RoleTeacher)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count teachers")
	}
	counts.Teachers = teachers

	announcements, events, err := s.feeds(ctx, models.RoleAdmin)
	if err != nil {
		return nil, err
	}

	payload := &models.AdminDashboard{Counts: counts, Announcements: announcements, Events: events}
	s.cacheSet(ctx, key, payload)
	return payload, nil
}

// Teacher assembles the teacher landing payload.
func (s *DashboardService) Teacher(ctx context.Context, teacherID string) (*models.TeacherDashboard, error) {
	key := fmt.Sprintf("dashboard:teacher:%s", teacherID)
	var cached models.TeacherDashboard
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	assignments, err := s.assignments.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher assignments")
	}

	announcements, events, err := s.feeds(ctx, models.RoleTeacher)
	if err != nil {
		return nil, err
	}

	payload := &models.TeacherDashboard{Assignments: assignments, Announcements: announcements, Events: events}
	s.cacheSet(ctx, key, payload)
	return payload, nil
}

// Student assembles the student landing payload.
func (s *DashboardService) Student(ctx context.Context, studentID string) (*models.StudentDashboard, error) {
	key := fmt.Sprintf("dashboard:student:%s", studentID)
	var cached models.StudentDashboard
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	marks, err := s.recentMarks.ListForViewer(ctx, studentID, models.RoleStudent, models.MarkFilter{})
	if err != nil {
		return nil, err
	}
	if len(marks) > s.config.FeedLimit {
		marks = marks[:s.config.FeedLimit]
	}

	announcements, events, err := s.feeds(ctx, models.RoleStudent)
	if err != nil {
		return nil, err
	}

	payload := &models.StudentDashboard{RecentMarks: marks, Announcements: announcements, Events: events}
	s.cacheSet(ctx, key, payload)
	return payload, nil
}

// Invalidate drops all cached dashboard payloads. Called after writes that
// change counts or feeds.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "dashboard:*"); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}

func (s *DashboardService) feeds(ctx context.Context, role models.UserRole) ([]models.Announcement, []models.Event, error) {
	announcements, err := s.announcements.ListForViewer(ctx, role, s.config.FeedLimit)
	if err != nil {
		return nil, nil, err
	}
	events, err := s.events.ListForViewer(ctx, role, s.config.FeedLimit)
	if err != nil {
		return nil, nil, err
	}
	return announcements, events, nil
}

func (s *DashboardService) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	err := s.cache.Get(ctx, key, dest)
	if err == nil {
		s.metrics.RecordCacheLookup(true)
		return true
	}
	s.metrics.RecordCacheLookup(false)
	if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("dashboard cache read failed", zap.String("key", key), zap.Error(err))
	}
	return false
}

func (s *DashboardService) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.config.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}
