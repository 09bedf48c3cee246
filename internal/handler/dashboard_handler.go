package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/progressive-sch/progressive-api/internal/models"
	"github.com/progressive-sch/progressive-api/internal/service"
	appErrors "github.com/progressive-sch/progressive-api/pkg/errors"
	"github.com/progressive-sch/progressive-api/pkg/response"
)

type DashboardHandler struct {
	service *service.DashboardService
}

func NewDashboardHandler(svc *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: svc}
}

// Dashboard godoc
// @Summary Role-specific dashboard for the caller
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /dashboard [get]
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var (
		payload interface{}
		err     error
	)
	switch claims.Role {
	case models.RoleAdmin:
		payload, err = h.service.Admin(c.Request.Context())
	case models.RoleTeacher:
		payload, err = h.service.Teacher(c.Request.Context(), claims.UserID)
	case models.RoleStudent:
		payload, err = h.service.Student(c.Request.Context(), claims.UserID)
	default:
		err = appErrors.ErrForbidden
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payload, nil)
}
