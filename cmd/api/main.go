package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/progressive-sch/progressive-api/api/swagger"
	"github.com/progressive-sch/progressive-api/internal/handler"
	"github.com/progressive-sch/progressive-api/internal/middleware"
	"github.com/progressive-sch/progressive-api/internal/models"
	"github.com/progressive-sch/progressive-api/internal/repository"
	"github.com/progressive-sch/progressive-api/internal/service"
	"github.com/progressive-sch/progressive-api/pkg/cache"
	"github.com/progressive-sch/progressive-api/pkg/config"
	"github.com/progressive-sch/progressive-api/pkg/database"
	"github.com/progressive-sch/progressive-api/pkg/jobs"
	"github.com/progressive-sch/progressive-api/pkg/logger"
	corsmiddleware "github.com/progressive-sch/progressive-api/pkg/middleware/cors"
	reqidmiddleware "github.com/progressive-sch/progressive-api/pkg/middleware/requestid"
	"github.com/progressive-sch/progressive-api/pkg/storage"
)

// @title Progressive School API
// @version 1.0.0
// @description REST backend for the Progressive school management system
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, dashboard caching disabled", "error", err)
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	departmentRepo := repository.NewDepartmentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	semesterRepo := repository.NewSemesterRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	markRepo := repository.NewMarkRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	eventRepo := repository.NewEventRepository(db)
	jobRepo := repository.NewReportJobRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "progressive-api",
	})
	userSvc := service.NewUserService(userRepo, validate, logr, service.AdmissionConfig{
		Prefix:        cfg.Admissions.Prefix,
		SuffixLength:  cfg.Admissions.SuffixLength,
		StudentDomain: cfg.Admissions.StudentDomain,
		StaffDomain:   cfg.Admissions.StaffDomain,
	})
	departmentSvc := service.NewDepartmentService(departmentRepo, userRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, departmentRepo, userRepo, validate, logr)
	classSvc := service.NewClassService(classRepo, courseRepo, userRepo, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, courseRepo, userRepo, validate, logr)
	semesterSvc := service.NewSemesterService(semesterRepo, userRepo, validate, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, userRepo, subjectRepo, classRepo, userRepo, validate, logr)
	markSvc := service.NewMarkService(markRepo, assignmentRepo, userRepo, userRepo, validate, logr)
	announcementSvc := service.NewAnnouncementService(announcementRepo, userRepo, validate, logr)
	eventSvc := service.NewEventService(eventRepo, userRepo, validate, logr)

	reportSvc := service.NewReportService(markRepo, userRepo, semesterRepo, jobRepo, store, signer, logr)
	exportQueue := jobs.NewQueue("report-exports", reportSvc.RunExportJob, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})
	reportSvc.AttachQueue(exportQueue)

	dashboardSvc := service.NewDashboardService(service.DashboardDeps{
		Departments:   departmentRepo,
		Courses:       courseRepo,
		Classes:       classRepo,
		Subjects:      subjectRepo,
		Semesters:     semesterRepo,
		Marks:         markRepo,
		AnnCounter:    announcementRepo,
		EventCounter:  eventRepo,
		Users:         userRepo,
		Announcements: announcementSvc,
		Events:        eventSvc,
		Assignments:   assignmentSvc,
		RecentMarks:   markSvc,
		Cache:         cacheRepo,
		Metrics:       metricsSvc,
	}, service.DashboardConfig{CacheTTL: cfg.Dashboard.CacheTTL}, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	academicHandler := handler.NewAcademicHandler(departmentSvc, courseSvc, classSvc, subjectSvc)
	semesterHandler := handler.NewSemesterHandler(semesterSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	markHandler := handler.NewMarkHandler(markSvc, metricsSvc)
	communicationHandler := handler.NewCommunicationHandler(announcementSvc, eventSvc)
	reportHandler := handler.NewReportHandler(reportSvc, markSvc, subjectSvc, classSvc, metricsSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), routeDeps{
		AuthService:   authSvc,
		UserRepo:      userRepo,
		DashboardSvc:  dashboardSvc,

		Auth:          authHandler,
		Users:         userHandler,
		Academic:      academicHandler,
		Semesters:     semesterHandler,
		Assignments:   assignmentHandler,
		Marks:         markHandler,
		Communication: communicationHandler,
		Reports:       reportHandler,
		Dashboard:     dashboardHandler,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exportQueue.Start(ctx)
	defer exportQueue.Stop()

	go runExportCleanup(ctx, reportSvc, cfg.Reports.CleanupInterval, cfg.Reports.SignedURLTTL)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}

type routeDeps struct {
	AuthService  *service.AuthService
	UserRepo     *repository.UserRepository
	DashboardSvc *service.DashboardService

	Auth          *handler.AuthHandler
	Users         *handler.UserHandler
	Academic      *handler.AcademicHandler
	Semesters     *handler.SemesterHandler
	Assignments   *handler.AssignmentHandler
	Marks         *handler.MarkHandler
	Communication *handler.CommunicationHandler
	Reports       *handler.ReportHandler
	Dashboard     *handler.DashboardHandler
}

func registerRoutes(api *gin.RouterGroup, deps routeDeps) {
	api.POST("/auth/login", deps.Auth.Login)
	api.POST("/auth/refresh", deps.Auth.Refresh)
	api.GET("/export/:token", deps.Reports.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(deps.AuthService))

	authed.POST("/auth/logout", deps.Auth.Logout)
	authed.GET("/auth/me", deps.Auth.Profile)
	authed.PUT("/auth/profile", deps.Auth.UpdateProfile)
	authed.POST("/auth/change-password", deps.Auth.ChangePassword)

	admin := authed.Group("")
	admin.Use(middleware.RBAC(string(models.RoleAdmin)))
	admin.Use(invalidateDashboard(deps.DashboardSvc))

	staff := authed.Group("")
	staff.Use(middleware.RBAC(string(models.RoleAdmin), string(models.RoleTeacher)))
	staff.Use(invalidateDashboard(deps.DashboardSvc))

	admin.GET("/students", deps.Users.ListStudents)
	admin.POST("/students", deps.Users.CreateStudent)
	admin.PUT("/students/:id", deps.Users.Update)
	admin.DELETE("/students/:id", deps.Users.Delete)
	authed.GET("/students/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), deps.Users.Get)

	admin.GET("/teachers", deps.Users.ListTeachers)
	admin.POST("/teachers", deps.Users.CreateTeacher)
	admin.PUT("/teachers/:id", deps.Users.Update)
	admin.DELETE("/teachers/:id", deps.Users.Delete)
	authed.GET("/teachers/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), deps.Users.Get)

	admin.GET("/admins", deps.Users.ListAdmins)
	admin.PUT("/admins/:id", deps.Users.Update)
	admin.DELETE("/admins/:id", deps.Users.Delete)

	admin.GET("/departments", deps.Academic.ListDepartments)
	admin.GET("/departments/:id", deps.Academic.GetDepartment)
	admin.POST("/departments", deps.Academic.CreateDepartment)
	admin.PUT("/departments/:id", deps.Academic.UpdateDepartment)
	admin.DELETE("/departments/:id", deps.Academic.DeleteDepartment)

	admin.GET("/courses", deps.Academic.ListCourses)
	admin.GET("/courses/:id", deps.Academic.GetCourse)
	admin.POST("/courses", deps.Academic.CreateCourse)
	admin.PUT("/courses/:id", deps.Academic.UpdateCourse)
	admin.DELETE("/courses/:id", deps.Academic.DeleteCourse)

	admin.GET("/classes", deps.Academic.ListClasses)
	admin.GET("/classes/:id", deps.Academic.GetClass)
	admin.POST("/classes", deps.Academic.CreateClass)
	admin.PUT("/classes/:id", deps.Academic.UpdateClass)
	admin.DELETE("/classes/:id", deps.Academic.DeleteClass)

	admin.GET("/subjects", deps.Academic.ListSubjects)
	admin.GET("/subjects/:id", deps.Academic.GetSubject)
	admin.POST("/subjects", deps.Academic.CreateSubject)
	admin.PUT("/subjects/:id", deps.Academic.UpdateSubject)
	admin.DELETE("/subjects/:id", deps.Academic.DeleteSubject)

	admin.GET("/semesters", deps.Semesters.List)
	admin.GET("/semesters/:id", deps.Semesters.Get)
	admin.POST("/semesters", deps.Semesters.Create)
	admin.PUT("/semesters/:id", deps.Semesters.Update)
	admin.DELETE("/semesters/:id", deps.Semesters.Delete)

	admin.GET("/announcements", deps.Communication.ListAnnouncements)
	admin.POST("/announcements", deps.Communication.CreateAnnouncement)
	admin.PUT("/announcements/:id", deps.Communication.UpdateAnnouncement)
	admin.DELETE("/announcements/:id", deps.Communication.DeleteAnnouncement)

	admin.GET("/events", deps.Communication.ListEvents)
	admin.POST("/events", deps.Communication.CreateEvent)
	admin.PUT("/events/:id", deps.Communication.UpdateEvent)
	admin.DELETE("/events/:id", deps.Communication.DeleteEvent)

	authed.GET("/feed/announcements", deps.Communication.ListAnnouncements)
	authed.GET("/feed/announcements/:id", deps.Communication.GetAnnouncement)
	authed.GET("/feed/events", deps.Communication.ListEvents)
	authed.GET("/feed/events/:id", deps.Communication.GetEvent)

	staff.GET("/assignments", deps.Assignments.List)
	staff.POST("/assignments", deps.Assignments.Create)
	staff.DELETE("/assignments/:id", deps.Assignments.Delete)

	staff.POST("/marks", deps.Marks.Upload)
	staff.GET("/marks", deps.Marks.List)
	staff.GET("/marks/students", deps.Marks.ClassMarks)
	staff.GET("/marks/summary", deps.Marks.Summary)
	authed.GET("/marks/mine", middleware.RBAC(string(models.RoleStudent)), deps.Marks.List)

	reportViewer := middleware.RBAC(string(models.RoleAdmin), string(models.RoleTeacher), "SELF")
	authed.GET("/reports/students/:id", reportViewer, deps.Reports.StudentReport)
	authed.GET("/reports/students/:id/pdf", reportViewer, deps.Reports.StudentReportPDF)
	staff.GET("/reports/classes/:id/subjects/:subjectId/pdf", deps.Reports.ClassMarksPDF)
	admin.GET("/reports/consolidated/pdf", deps.Reports.ConsolidatedPDF)
	admin.POST("/reports/export", middleware.Audit(deps.UserRepo, models.AuditActionCreate, "report_export"), deps.Reports.EnqueueExport)
	authed.GET("/reports/export", deps.Reports.ListJobs)
	authed.GET("/reports/export/:id", deps.Reports.JobStatus)

	authed.GET("/dashboard", deps.Dashboard.Dashboard)
}

// invalidateDashboard drops cached dashboard payloads after a successful
// mutation so the next load reflects it.
func invalidateDashboard(dashboards *service.DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Request.Method == http.MethodGet || c.Writer.Status() >= 400 {
			return
		}
		dashboards.Invalidate(c.Request.Context())
	}
}

func runExportCleanup(ctx context.Context, reports *service.ReportService, interval, ttl time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reports.CleanupExpired(ttl)
		}
	}
}
