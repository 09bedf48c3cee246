package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/progressive-sch/progressive-api/internal/models"
	"github.com/progressive-sch/progressive-api/internal/service"
	appErrors "github.com/progressive-sch/progressive-api/pkg/errors"
	"github.com/progressive-sch/progressive-api/pkg/response"
)

type AssignmentHandler struct {
	service *service.AssignmentService
}

func NewAssignmentHandler(svc *service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{service: svc}
}

// List godoc
// @Summary List teaching assignments
// @Description Admins see every assignment, teachers only their own.
// @Tags Assignments
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /assignments [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var (
		assignments []models.TeacherAssignmentDetail
		err         error
	)
	if claims.Role == models.RoleAdmin {
		assignments, err = h.service.ListAll(c.Request.Context())
	} else {
		assignments, err = h.service.ListByTeacher(c.Request.Context(), claims.UserID)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// Create godoc
// @Summary Assign a teacher to a subject and class
// @Description Teachers register themselves, admins may assign any teacher.
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body models.AssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /assignments [post]
func (h *AssignmentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.AssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	if claims.Role == models.RoleTeacher {
		req.TeacherID = claims.UserID
	}

	assignment, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Delete godoc
// @Summary Remove a teaching assignment
// @Tags Assignments
// @Param id path string true "Assignment ID"
// @Success 204
// @Security BearerAuth
// @Router /assignments/{id} [delete]
func (h *AssignmentHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), claims.UserID, claims.Role, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
