package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	internalmiddleware "github.com/progressive-sch/progressive-api/internal/middleware"
	"github.com/progressive-sch/progressive-api/internal/models"
	"github.com/progressive-sch/progressive-api/internal/service"
)

const uploadPayload = `{
	"subject_id": "subj-1",
	"class_id": "class-1",
	"semester_id": "sem-1",
	"entries": [{"student_id": "student-1", "score": 85}]
}`

func TestMarkRoutesIntegration(t *testing.T) {
	router := buildMarkRouter(t)

	t.Run("upload success", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/marks", bytes.NewBufferString(uploadPayload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-User", "teacher-1")
		req.Header.Set("X-Test-Role", string(models.RoleTeacher))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"saved":1`)
	})

	t.Run("upload unassigned teacher", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/marks", bytes.NewBufferString(uploadPayload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-User", "teacher-2")
		req.Header.Set("X-Test-Role", string(models.RoleTeacher))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
		require.Contains(t, resp.Body.String(), "NOT_ASSIGNED")
	})

	t.Run("upload forbidden for students", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/marks", bytes.NewBufferString(uploadPayload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-User", "student-1")
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("upload unauthorized", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/marks", bytes.NewBufferString(uploadPayload))
		req.Header.Set("Content-Type", "application/json")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("upload invalid payload", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/marks", bytes.NewBufferString(`{"subject_id": 7}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-User", "teacher-1")
		req.Header.Set("X-Test-Role", string(models.RoleTeacher))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("students own marks", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/marks/mine", nil)
		req.Header.Set("X-Test-User", "student-1")
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"student_id":"student-1"`)
	})

	t.Run("roster lists students without marks", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/marks/students?subject_id=subj-1&class_id=class-1", nil)
		req.Header.Set("X-Test-User", "teacher-1")
		req.Header.Set("X-Test-Role", string(models.RoleTeacher))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), "Ada Obi")
		require.Contains(t, resp.Body.String(), "Ben Eze")
		require.Contains(t, resp.Body.String(), `"grade_points":2`)
	})
}

func TestFeedRoutesIntegration(t *testing.T) {
	router := buildFeedRouter()

	t.Run("student sees student and all announcements", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/feed/announcements", nil)
		req.Header.Set("X-Test-User", "student-1")
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), "Sports Day")
		require.NotContains(t, resp.Body.String(), "Staff Meeting")
	})

	t.Run("teacher sees teacher announcements", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/feed/announcements", nil)
		req.Header.Set("X-Test-User", "teacher-1")
		req.Header.Set("X-Test-Role", string(models.RoleTeacher))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), "Staff Meeting")
	})

	t.Run("hidden announcement is not found by id", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/feed/announcements/ann-teacher", nil)
		req.Header.Set("X-Test-User", "student-1")
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestStudentReportRouteIntegration(t *testing.T) {
	router := buildMarkRouter(t)

	t.Run("student reads own report", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/reports/students/student-1", nil)
		req.Header.Set("X-Test-User", "student-1")
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"summary"`)
	})

	t.Run("student blocked from another report", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/reports/students/student-2", nil)
		req.Header.Set("X-Test-User", "student-1")
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("report pdf is an attachment", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/reports/students/student-1/pdf", nil)
		req.Header.Set("X-Test-User", "admin-1")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Header().Get("Content-Disposition"), "prog0001_results.pdf")
		require.True(t, bytes.HasPrefix(resp.Body.Bytes(), []byte("%PDF")))
	})
}

func buildMarkRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(testClaims())

	validate := validator.New()
	marks := newRouteMarkRepo()
	users := routeUserStore{}

	markSvc := service.NewMarkService(marks, routeAssignments{}, users, nil, validate, zap.NewNop())
	reportSvc := service.NewReportService(marks, users, routeSemesters{}, nil, nil, nil, zap.NewNop())

	markHandler := NewMarkHandler(markSvc, nil)
	reportHandler := NewReportHandler(reportSvc, markSvc, nil, nil, nil)

	staff := internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleTeacher))
	viewer := internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleTeacher), "SELF")
	router.POST("/marks", staff, markHandler.Upload)
	router.GET("/marks/mine", internalmiddleware.RBAC(string(models.RoleStudent)), markHandler.List)
	router.GET("/marks/students", staff, markHandler.ClassMarks)
	router.GET("/reports/students/:id", viewer, reportHandler.StudentReport)
	router.GET("/reports/students/:id/pdf", viewer, reportHandler.StudentReportPDF)

	return router
}

func buildFeedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(testClaims())

	validate := validator.New()
	announcementSvc := service.NewAnnouncementService(routeAnnouncementRepo{}, nil, validate, zap.NewNop())
	eventSvc := service.NewEventService(routeEventRepo{}, nil, validate, zap.NewNop())
	comms := NewCommunicationHandler(announcementSvc, eventSvc)

	router.GET("/feed/announcements", comms.ListAnnouncements)
	router.GET("/feed/announcements/:id", comms.GetAnnouncement)
	router.GET("/feed/events", comms.ListEvents)

	return router
}

func testClaims() gin.HandlerFunc {
	return func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{
				UserID: c.GetHeader("X-Test-User"),
				Role:   models.UserRole(role),
			})
		}
		c.Next()
	}
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type routeMarkRepo struct {
	details []models.MarkDetail
}

func newRouteMarkRepo() *routeMarkRepo {
	score := 78.0
	grade := models.GradeC
	return &routeMarkRepo{details: []models.MarkDetail{{
		Mark: models.Mark{
			ID:         "mark-1",
			StudentID:  "student-1",
			SubjectID:  "subj-1",
			TeacherID:  "teacher-1",
			ClassID:    "class-1",
			SemesterID: "sem-1",
			Score:      &score,
			Grade:      &grade,
		},
		StudentName:     "Ada Obi",
		AdmissionNumber: strPtr("prog0001"),
		SubjectName:     "Mathematics",
		ClassName:       "JSS1A",
		SemesterName:    "First Term",
		TeacherName:     "Tom Reed",
	}}}
}

func (r *routeMarkRepo) Upsert(ctx context.Context, mark *models.Mark) error { return nil }

func (r *routeMarkRepo) ListDetails(ctx context.Context, filter models.MarkFilter) ([]models.MarkDetail, error) {
	var out []models.MarkDetail
	for _, d := range r.details {
		if filter.StudentID != "" && d.StudentID != filter.StudentID {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *routeMarkRepo) Summary(ctx context.Context, filter models.MarkFilter) (*models.MarkSummary, error) {
	return &models.MarkSummary{Total: 78, Average: 78, SubjectsCount: 1}, nil
}

type routeAssignments struct{}

func (routeAssignments) Exists(ctx context.Context, teacherID, subjectID, classID string) (bool, error) {
	return teacherID == "teacher-1" && subjectID == "subj-1" && classID == "class-1", nil
}

type routeUserStore struct{}

func (routeUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	classID := "class-1"
	switch id {
	case "student-1":
		return &models.User{ID: id, Role: models.RoleStudent, FirstName: "Ada", LastName: "Obi", AdmissionNumber: strPtr("prog0001"), ClassID: &classID, Active: true}, nil
	case "student-2":
		return &models.User{ID: id, Role: models.RoleStudent, FirstName: "Ben", LastName: "Eze", AdmissionNumber: strPtr("prog0002"), ClassID: &classID, Active: true}, nil
	case "teacher-1", "teacher-2":
		return &models.User{ID: id, Role: models.RoleTeacher, FirstName: "Tom", LastName: "Reed", Active: true}, nil
	default:
		return &models.User{ID: id, Role: models.RoleAdmin, Active: true}, nil
	}
}

func (s routeUserStore) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if filter.Role != models.RoleStudent || filter.ClassID != "class-1" {
		return nil, 0, nil
	}
	first, _ := s.FindByID(ctx, "student-1")
	second, _ := s.FindByID(ctx, "student-2")
	return []models.User{*first, *second}, 2, nil
}

type routeSemesters struct{}

func (routeSemesters) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	return &models.Semester{ID: id, Name: "First Term"}, nil
}

type routeAnnouncementRepo struct{}

func (routeAnnouncementRepo) List(ctx context.Context, filter models.FeedFilter) ([]models.Announcement, error) {
	all := []models.Announcement{
		{ID: "ann-all", Title: "Sports Day", Content: "Friday", Visibility: models.VisibilityAll},
		{ID: "ann-teacher", Title: "Staff Meeting", Content: "Monday", Visibility: models.VisibilityTeacher},
		{ID: "ann-student", Title: "Exam Timetable", Content: "Posted", Visibility: models.VisibilityStudent},
	}
	if filter.Unfiltered {
		return all, nil
	}
	var out []models.Announcement
	for _, a := range all {
		if a.Visibility.VisibleTo(filter.ViewerRole) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (routeAnnouncementRepo) FindByID(ctx context.Context, id string) (*models.Announcement, error) {
	if id == "ann-teacher" {
		return &models.Announcement{ID: id, Title: "Staff Meeting", Visibility: models.VisibilityTeacher}, nil
	}
	return &models.Announcement{ID: id, Title: "Sports Day", Visibility: models.VisibilityAll}, nil
}

func (routeAnnouncementRepo) Create(ctx context.Context, announcement *models.Announcement) error {
	return nil
}

func (routeAnnouncementRepo) Update(ctx context.Context, announcement *models.Announcement) error {
	return nil
}

func (routeAnnouncementRepo) Delete(ctx context.Context, id string) error { return nil }

type routeEventRepo struct{}

func (routeEventRepo) List(ctx context.Context, filter models.FeedFilter) ([]models.Event, error) {
	return []models.Event{{ID: "evt-1", Title: "Open Day", Date: time.Now().UTC(), Visibility: models.VisibilityAll}}, nil
}

func (routeEventRepo) FindByID(ctx context.Context, id string) (*models.Event, error) {
	return &models.Event{ID: id, Title: "Open Day", Visibility: models.VisibilityAll}, nil
}

func (routeEventRepo) Create(ctx context.Context, event *models.Event) error { return nil }

func (routeEventRepo) Update(ctx context.Context, event *models.Event) error { return nil }

func (routeEventRepo) Delete(ctx context.Context, id string) error { return nil }

func strPtr(s string) *string { return &s }
