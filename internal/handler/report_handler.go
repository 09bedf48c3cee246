package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/progressive-sch/progressive-api/internal/models"
	"github.com/progressive-sch/progressive-api/internal/service"
	appErrors "github.com/progressive-sch/progressive-api/pkg/errors"
	"github.com/progressive-sch/progressive-api/pkg/response"
)

type ReportHandler struct {
	reports  *service.ReportService
	marks    *service.MarkService
	subjects *service.SubjectService
	classes  *service.ClassService
	metrics  *service.MetricsService
}

func NewReportHandler(reports *service.ReportService, marks *service.MarkService, subjects *service.SubjectService, classes *service.ClassService, metrics *service.MetricsService) *ReportHandler {
	return &ReportHandler{
		reports:  reports,
		marks:    marks,
		subjects: subjects,
		classes:  classes,
		metrics:  metrics,
	}
}

// StudentReport godoc
// @Summary Per-subject results and summary for a student
// @Tags Reports
// @Produce json
// @Param id path string true "Student ID"
// @Param semester_id query string false "Semester ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/students/{id} [get]
func (h *ReportHandler) StudentReport(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	report, err := h.reports.StudentReport(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"), c.Query("semester_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// StudentReportPDF godoc
// @Summary Download a student result sheet as PDF
// @Tags Reports
// @Produce application/pdf
// @Param id path string true "Student ID"
// @Param semester_id query string false "Semester ID"
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /reports/students/{id}/pdf [get]
func (h *ReportHandler) StudentReportPDF(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	payload, filename, err := h.reports.StudentReportPDF(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"), c.Query("semester_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordReportRendered("student")
	response.Attachment(c, filename, "application/pdf", payload)
}

// ClassMarksPDF godoc
// @Summary Download the mark sheet for one subject and class as PDF
// @Tags Reports
// @Produce application/pdf
// @Param id path string true "Class ID"
// @Param subjectId path string true "Subject ID"
// @Param semester_id query string false "Semester ID"
// @Param teacher_id query string false "Teacher to act on behalf of (admin only)"
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /reports/classes/{id}/subjects/{subjectId}/pdf [get]
func (h *ReportHandler) ClassMarksPDF(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	classID := c.Param("id")
	subjectID := c.Param("subjectId")

	rows, err := h.marks.ClassMarks(c.Request.Context(), claims.UserID, claims.Role, c.Query("teacher_id"), subjectID, classID, c.Query("semester_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	subject, err := h.subjects.Get(c.Request.Context(), subjectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	class, err := h.classes.Get(c.Request.Context(), classID)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload, filename, err := h.reports.ClassMarksPDF(c.Request.Context(), rows, subject.Name, class.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordReportRendered("class")
	response.Attachment(c, filename, "application/pdf", payload)
}

// ConsolidatedPDF godoc
// @Summary Download consolidated results across the school as PDF
// @Tags Reports
// @Produce application/pdf
// @Param class_id query string false "Class ID"
// @Param subject_id query string false "Subject ID"
// @Param semester_id query string false "Semester ID"
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /reports/consolidated/pdf [get]
func (h *ReportHandler) ConsolidatedPDF(c *gin.Context) {
	filter := models.MarkFilter{
		StudentID:  c.Query("student_id"),
		SubjectID:  c.Query("subject_id"),
		ClassID:    c.Query("class_id"),
		SemesterID: c.Query("semester_id"),
	}
	payload, filename, err := h.reports.ConsolidatedPDF(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordReportRendered("consolidated")
	response.Attachment(c, filename, "application/pdf", payload)
}

// EnqueueExport godoc
// @Summary Queue an asynchronous consolidated export
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body models.ReportParams true "Export parameters"
// @Success 202 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/export [post]
func (h *ReportHandler) EnqueueExport(c *gin.Context) {
	var params models.ReportParams
	if err := c.ShouldBindJSON(&params); err != nil {
		response.Error(c, bindError(err))
		return
	}

	job, err := h.reports.EnqueueExport(c.Request.Context(), actorID(c), params)
	if err != nil {
		h.metrics.RecordExportJob("rejected")
		response.Error(c, err)
		return
	}
	h.metrics.RecordExportJob("queued")
	response.JSON(c, http.StatusAccepted, job, nil)
}

// ListJobs godoc
// @Summary List the caller's export jobs
// @Tags Reports
// @Produce json
// @Param limit query int false "Maximum jobs to return"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/export [get]
func (h *ReportHandler) ListJobs(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	jobs, err := h.reports.ListJobs(c.Request.Context(), claims.UserID, limitQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobs, nil)
}

// JobStatus godoc
// @Summary Poll an export job
// @Tags Reports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/export/{id} [get]
func (h *ReportHandler) JobStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	job, err := h.reports.JobStatus(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download a finished export via its signed token
// @Tags Reports
// @Produce application/octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /export/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	payload, filename, contentType, err := h.reports.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, contentType, payload)
}
