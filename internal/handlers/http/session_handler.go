package http

import (
	"net/http"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/internal/core/services"
	"huddle/internal/infrastructure/middleware"
	"huddle/internal/infrastructure/monitoring"
	"huddle/pkg/cache"
	"huddle/pkg/validation"

	"github.com/gin-gonic/gin"
)

// SessionHandler serves the read-only session inspection API and the join
// token minting endpoint used by the account system.
type SessionHandler struct {
	rooms         ports.RoomService
	authService   services.AuthService
	healthChecker *monitoring.HealthChecker
	snapshotCache *cache.Cache
}

func NewSessionHandler(rooms ports.RoomService, authService services.AuthService, healthChecker *monitoring.HealthChecker) *SessionHandler {
	return &SessionHandler{
		rooms:         rooms,
		authService:   authService,
		healthChecker: healthChecker,
		snapshotCache: cache.New(2 * time.Second),
	}
}

func (h *SessionHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Health)

	api := router.Group("/api/v1")
	{
		api.POST("/sessions/:id/tokens", h.MintToken)

		authorized := api.Group("", middleware.AuthMiddleware(h.authService))
		{
			authorized.GET("/sessions", h.ListSessions)
			authorized.GET("/sessions/:id", h.GetSession)
		}
	}
}

func (h *SessionHandler) Health(c *gin.Context) {
	status := h.healthChecker.Status()

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions := h.rooms.ActiveSessions(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
	})
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID := domain.SessionID(c.Param("id"))
	if err := validation.ValidateSessionID(string(sessionID)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Snapshots change on every join and leave; a short cache keeps
	// dashboard polling off the session locks.
	cacheKey := "snapshot:" + string(sessionID)
	if cached, found := h.snapshotCache.Get(cacheKey); found {
		c.JSON(http.StatusOK, cached)
		return
	}

	snapshot, err := h.rooms.Snapshot(c.Request.Context(), sessionID)
	if err != nil {
		if err == domain.ErrSessionNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	response := gin.H{
		"session":      sessionID,
		"participants": snapshot,
	}
	h.snapshotCache.Set(cacheKey, response)

	c.JSON(http.StatusOK, response)
}

func (h *SessionHandler) MintToken(c *gin.Context) {
	sessionID := domain.SessionID(c.Param("id"))
	if err := validation.ValidateSessionID(string(sessionID)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Participant domain.ParticipantID `json:"participant" binding:"required"`
		DisplayName string               `json:"display_name" binding:"required"`
		Host        bool                 `json:"host"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateParticipantID(string(req.Participant)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateDisplayName(req.DisplayName); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.authService.GenerateJoinToken(sessionID, req.Participant, req.DisplayName, req.Host)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token": token,
	})
}
