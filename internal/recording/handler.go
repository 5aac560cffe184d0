package recording

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/campuslive/backend/internal/middleware"
	"github.com/campuslive/backend/pkg/response"
)

// Handler handles recording HTTP endpoints.
type Handler struct {
	coord *Coordinator
}

// NewHandler creates a recording handler.
func NewHandler(coord *Coordinator) *Handler {
	return &Handler{coord: coord}
}

func parseID(c *gin.Context, param, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.BadRequest(c, "invalid "+what)
		return uuid.Nil, false
	}
	return id, true
}

// Start handles POST /sessions/:id/recording/start.
func (h *Handler) Start(c *gin.Context) {
	id, ok := parseID(c, "id", "session id")
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	rec, err := h.coord.Start(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rec)
}

// Stop handles POST /sessions/:id/recording/stop.
func (h *Handler) Stop(c *gin.Context) {
	id, ok := parseID(c, "id", "session id")
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	rec, err := h.coord.Stop(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// List handles GET /sessions/:id/recordings.
func (h *Handler) List(c *gin.Context) {
	id, ok := parseID(c, "id", "session id")
	if !ok {
		return
	}
	list, err := h.coord.List(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Download handles GET /recordings/:recording_id/download.
func (h *Handler) Download(c *gin.Context) {
	id, ok := parseID(c, "recording_id", "recording id")
	if !ok {
		return
	}
	url, err := h.coord.DownloadURL(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"url": url})
}

// Delete handles DELETE /recordings/:recording_id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c, "recording_id", "recording id")
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	if err := h.coord.Delete(c.Request.Context(), userID, id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RegisterRoutes mounts the recording endpoints on the authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sessions/:id/recording/start", h.Start)
	rg.POST("/sessions/:id/recording/stop", h.Stop)
	rg.GET("/sessions/:id/recordings", h.List)
	rg.GET("/recordings/:recording_id/download", h.Download)
	rg.DELETE("/recordings/:recording_id", h.Delete)
}
