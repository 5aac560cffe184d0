package breakout

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/campuslive/backend/internal/middleware"
	"github.com/campuslive/backend/pkg/response"
)

// AssignRequest is the body for POST /sessions/:id/breakouts/assign.
type AssignRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
	RoomID string `json:"room_id" binding:"required"`
}

// RemoveRequest is the body for POST /sessions/:id/breakouts/remove.
type RemoveRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
}

// Handler handles breakout HTTP endpoints.
type Handler struct {
	coord *Coordinator
}

// NewHandler creates a breakout handler.
func NewHandler(coord *Coordinator) *Handler {
	return &Handler{coord: coord}
}

func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

// Create handles POST /sessions/:id/breakouts.
func (h *Handler) Create(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	cfg, err := h.coord.CreateRooms(c.Request.Context(), userID, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cfg)
}

// Assign handles POST /sessions/:id/breakouts/assign.
func (h *Handler) Assign(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	target, err := uuid.Parse(req.UserID)
	if err != nil {
		response.BadRequest(c, "invalid user_id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	cfg, err := h.coord.Assign(c.Request.Context(), userID, id, target, req.RoomID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cfg)
}

// Remove handles POST /sessions/:id/breakouts/remove.
func (h *Handler) Remove(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req RemoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	target, err := uuid.Parse(req.UserID)
	if err != nil {
		response.BadRequest(c, "invalid user_id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	cfg, err := h.coord.Remove(c.Request.Context(), userID, id, target)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cfg)
}

// Close handles DELETE /sessions/:id/breakouts.
func (h *Handler) Close(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	if err := h.coord.Close(c.Request.Context(), userID, id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RegisterRoutes mounts the breakout endpoints on the authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sessions/:id/breakouts", h.Create)
	rg.POST("/sessions/:id/breakouts/assign", h.Assign)
	rg.POST("/sessions/:id/breakouts/remove", h.Remove)
	rg.DELETE("/sessions/:id/breakouts", h.Close)
}
