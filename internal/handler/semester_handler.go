package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/progressive-sch/progressive-api/internal/models"
	"github.com/progressive-sch/progressive-api/internal/service"
	"github.com/progressive-sch/progressive-api/pkg/response"
)

type SemesterHandler struct {
	service *service.SemesterService
}

func NewSemesterHandler(svc *service.SemesterService) *SemesterHandler {
	return &SemesterHandler{service: svc}
}

// List godoc
// @Summary List semesters
// @Tags Semesters
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /semesters [get]
func (h *SemesterHandler) List(c *gin.Context) {
	semesters, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semesters, nil)
}

// Get godoc
// @Summary Get a semester
// @Tags Semesters
// @Produce json
// @Param id path string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /semesters/{id} [get]
func (h *SemesterHandler) Get(c *gin.Context) {
	semester, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semester, nil)
}

// Create godoc
// @Summary Create a semester
// @Tags Semesters
// @Accept json
// @Produce json
// @Param payload body models.SemesterRequest true "Semester payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /semesters [post]
func (h *SemesterHandler) Create(c *gin.Context) {
	var req models.SemesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	semester, err := h.service.Create(c.Request.Context(), actorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, semester)
}

// Update godoc
// @Summary Update a semester
// @Tags Semesters
// @Accept json
// @Produce json
// @Param id path string true "Semester ID"
// @Param payload body models.SemesterRequest true "Semester payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /semesters/{id} [put]
func (h *SemesterHandler) Update(c *gin.Context) {
	var req models.SemesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	semester, err := h.service.Update(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semester, nil)
}

// Delete godoc
// @Summary Delete a semester
// @Tags Semesters
// @Param id path string true "Semester ID"
// @Success 204
// @Security BearerAuth
// @Router /semesters/{id} [delete]
func (h *SemesterHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
