package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/progressive-sch/progressive-api/internal/models"
	"github.com/progressive-sch/progressive-api/internal/service"
	appErrors "github.com/progressive-sch/progressive-api/pkg/errors"
	"github.com/progressive-sch/progressive-api/pkg/response"
)

// CommunicationHandler serves announcements and events.
type CommunicationHandler struct {
	announcements *service.AnnouncementService
	events        *service.EventService
}

func NewCommunicationHandler(announcements *service.AnnouncementService, events *service.EventService) *CommunicationHandler {
	return &CommunicationHandler{announcements: announcements, events: events}
}

func viewerRole(c *gin.Context) (models.UserRole, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		return "", false
	}
	return claims.Role, true
}

func limitQuery(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

// ListAnnouncements godoc
// @Summary List announcements visible to the caller
// @Tags Communication
// @Produce json
// @Param limit query int false "Maximum rows"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /feed/announcements [get]
func (h *CommunicationHandler) ListAnnouncements(c *gin.Context) {
	role, ok := viewerRole(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	announcements, err := h.announcements.ListForViewer(c.Request.Context(), role, limitQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcements, nil)
}

// GetAnnouncement godoc
// @Summary Get an announcement
// @Tags Communication
// @Produce json
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /announcements/{id} [get]
func (h *CommunicationHandler) GetAnnouncement(c *gin.Context) {
	role, ok := viewerRole(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	announcement, err := h.announcements.Get(c.Request.Context(), role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcement, nil)
}

// CreateAnnouncement godoc
// @Summary Publish an announcement
// @Tags Communication
// @Accept json
// @Produce json
// @Param payload body models.AnnouncementRequest true "Announcement payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /announcements [post]
func (h *CommunicationHandler) CreateAnnouncement(c *gin.Context) {
	var req models.AnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	announcement, err := h.announcements.Create(c.Request.Context(), actorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, announcement)
}

// UpdateAnnouncement godoc
// @Summary Update an announcement
// @Tags Communication
// @Accept json
// @Produce json
// @Param id path string true "Announcement ID"
// @Param payload body models.AnnouncementRequest true "Announcement payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /announcements/{id} [put]
func (h *CommunicationHandler) UpdateAnnouncement(c *gin.Context) {
	var req models.AnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	announcement, err := h.announcements.Update(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcement, nil)
}

// DeleteAnnouncement godoc
// @Summary Delete an announcement
// @Tags Communication
// @Param id path string true "Announcement ID"
// @Success 204
// @Security BearerAuth
// @Router /announcements/{id} [delete]
func (h *CommunicationHandler) DeleteAnnouncement(c *gin.Context) {
	if err := h.announcements.Delete(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListEvents godoc
// @Summary List events visible to the caller
// @Tags Communication
// @Produce json
// @Param limit query int false "Maximum rows"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /feed/events [get]
func (h *CommunicationHandler) ListEvents(c *gin.Context) {
	role, ok := viewerRole(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	events, err := h.events.ListForViewer(c.Request.Context(), role, limitQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// GetEvent godoc
// @Summary Get an event
// @Tags Communication
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /events/{id} [get]
func (h *CommunicationHandler) GetEvent(c *gin.Context) {
	role, ok := viewerRole(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	event, err := h.events.Get(c.Request.Context(), role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// CreateEvent godoc
// @Summary Publish an event
// @Tags Communication
// @Accept json
// @Produce json
// @Param payload body models.EventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /events [post]
func (h *CommunicationHandler) CreateEvent(c *gin.Context) {
	var req models.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	event, err := h.events.Create(c.Request.Context(), actorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// UpdateEvent godoc
// @Summary Update an event
// @Tags Communication
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body models.EventRequest true "Event payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /events/{id} [put]
func (h *CommunicationHandler) UpdateEvent(c *gin.Context) {
	var req models.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	event, err := h.events.Update(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// DeleteEvent godoc
// @Summary Delete an event
// @Tags Communication
// @Param id path string true "Event ID"
// @Success 204
// @Security BearerAuth
// @Router /events/{id} [delete]
func (h *CommunicationHandler) DeleteEvent(c *gin.Context) {
	if err := h.events.Delete(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
