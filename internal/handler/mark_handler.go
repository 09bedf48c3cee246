package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/progressive-sch/progressive-api/internal/models"
	"github.com/progressive-sch/progressive-api/internal/service"
	appErrors "github.com/progressive-sch/progressive-api/pkg/errors"
	"github.com/progressive-sch/progressive-api/pkg/response"
)

type MarkHandler struct {
	service *service.MarkService
	metrics *service.MetricsService
}

func NewMarkHandler(svc *service.MarkService, metrics *service.MetricsService) *MarkHandler {
	return &MarkHandler{service: svc, metrics: metrics}
}

// Upload godoc
// @Summary Upload a batch of marks for a subject and class
// @Description Each entry is saved, skipped or failed independently.
// @Tags Marks
// @Accept json
// @Produce json
// @Param payload body models.UploadMarksRequest true "Marks payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /marks [post]
func (h *MarkHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.UploadMarksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}

	result, err := h.service.Upload(c.Request.Context(), claims.UserID, claims.Role, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordMarksSaved(result.Saved)
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List marks visible to the caller
// @Description Students see their own marks, teachers the marks they recorded, admins everything.
// @Tags Marks
// @Produce json
// @Param subject_id query string false "Filter by subject"
// @Param class_id query string false "Filter by class"
// @Param semester_id query string false "Filter by semester"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /marks [get]
func (h *MarkHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.MarkFilter{
		StudentID:  c.Query("student_id"),
		SubjectID:  c.Query("subject_id"),
		ClassID:    c.Query("class_id"),
		SemesterID: c.Query("semester_id"),
	}
	marks, err := h.service.ListForViewer(c.Request.Context(), claims.UserID, claims.Role, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, marks, nil)
}

// ClassMarks godoc
// @Summary Class roster with recorded scores for one subject
// @Description Lists every student of the class; students without a mark yet have empty score fields. Requires the resolved teacher to hold the matching teaching assignment.
// @Tags Marks
// @Produce json
// @Param subject_id query string true "Subject ID"
// @Param class_id query string true "Class ID"
// @Param semester_id query string false "Semester ID"
// @Param teacher_id query string false "Teacher to act on behalf of (admin only)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /marks/students [get]
func (h *MarkHandler) ClassMarks(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	subjectID := c.Query("subject_id")
	classID := c.Query("class_id")
	if subjectID == "" || classID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "subject_id and class_id are required"))
		return
	}

	marks, err := h.service.ClassMarks(c.Request.Context(), claims.UserID, claims.Role, c.Query("teacher_id"), subjectID, classID, c.Query("semester_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, marks, nil)
}

// Summary godoc
// @Summary Aggregate totals for any filter combination
// @Tags Marks
// @Produce json
// @Param student_id query string false "Student ID"
// @Param subject_id query string false "Subject ID"
// @Param class_id query string false "Class ID"
// @Param semester_id query string false "Semester ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /marks/summary [get]
func (h *MarkHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), models.MarkFilter{
		StudentID:  c.Query("student_id"),
		SubjectID:  c.Query("subject_id"),
		ClassID:    c.Query("class_id"),
		SemesterID: c.Query("semester_id"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
