package sessions

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/campuslive/backend/internal/attendance"
	"github.com/campuslive/backend/internal/middleware"
	"github.com/campuslive/backend/internal/models"
	"github.com/campuslive/backend/internal/store"
	"github.com/campuslive/backend/pkg/response"
)

// AdmitRequest is the body for POST /sessions/:id/admit.
type AdmitRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
}

// Handler handles session HTTP endpoints.
type Handler struct {
	svc     *Service
	tracker *attendance.Tracker
}

// NewHandler creates a session handler.
func NewHandler(svc *Service, tracker *attendance.Tracker) *Handler {
	return &Handler{svc: svc, tracker: tracker}
}

func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

// Create handles POST /sessions.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	sess, err := h.svc.Create(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sess)
}

// List handles GET /sessions.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var f store.SessionFilter
	if c.Query("mine") == "hosted" {
		f.HostID = &userID
	} else if c.Query("mine") == "joined" {
		f.ParticipantID = &userID
	}
	if v := c.Query("course_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(c, "invalid course_id")
			return
		}
		f.CourseID = &id
	}
	if v := c.Query("status"); v != "" {
		st := models.SessionStatus(v)
		f.Status = &st
	}
	if v := c.Query("kind"); v != "" {
		k := models.SessionKind(v)
		f.Kind = &k
	}
	f.Search = c.Query("q")
	f.Limit, _ = strconv.Atoi(c.Query("limit"))
	f.Offset, _ = strconv.Atoi(c.Query("offset"))

	list, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /sessions/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	sess, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sess)
}

// Update handles PATCH /sessions/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	sess, err := h.svc.Update(c.Request.Context(), userID, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sess)
}

// Start handles POST /sessions/:id/start.
func (h *Handler) Start(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	sess, err := h.svc.Start(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sess)
}

// End handles POST /sessions/:id/end.
func (h *Handler) End(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	sess, err := h.svc.End(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sess)
}

// Cancel handles POST /sessions/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	sess, err := h.svc.Cancel(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sess)
}

// Join handles POST /sessions/:id/join.
func (h *Handler) Join(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	result, err := h.svc.Join(c.Request.Context(), userID, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Leave handles POST /sessions/:id/leave.
func (h *Handler) Leave(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	if err := h.svc.Leave(c.Request.Context(), userID, id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Admit handles POST /sessions/:id/admit.
func (h *Handler) Admit(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req AdmitRequest
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

	if err := h.svc.Admit(c.Request.Context(), userID, id, target); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Participants handles GET /sessions/:id/participants.
func (h *Handler) Participants(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	list, err := h.svc.Participants(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Attendance handles GET /sessions/:id/attendance.
func (h *Handler) Attendance(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	if _, err := h.svc.Get(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	stats, err := h.tracker.SessionStats(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}

// RegisterRoutes mounts all session endpoints on the authenticated group.
// Creating sessions is restricted to instructor/admin platform roles.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sessions", middleware.RequireRole("instructor", "admin"), h.Create)
	rg.GET("/sessions", h.List)
	rg.GET("/sessions/:id", h.GetByID)
	rg.PATCH("/sessions/:id", h.Update)
	rg.POST("/sessions/:id/start", h.Start)
	rg.POST("/sessions/:id/end", h.End)
	rg.POST("/sessions/:id/cancel", h.Cancel)
	rg.POST("/sessions/:id/join", h.Join)
	rg.POST("/sessions/:id/leave", h.Leave)
	rg.POST("/sessions/:id/admit", h.Admit)
	rg.GET("/sessions/:id/participants", h.Participants)
	rg.GET("/sessions/:id/attendance", h.Attendance)
}
