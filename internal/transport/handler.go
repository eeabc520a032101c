// Package transport exposes map sessions over HTTP and websocket.
package transport

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/UnknownOlympus/compass/internal/geocoding"
	"github.com/UnknownOlympus/compass/internal/models"
	"github.com/UnknownOlympus/compass/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Sessions is the part of service.Manager the handlers use.
type Sessions interface {
	Create() *service.Session
	Get(id uuid.UUID) (*service.Session, error)
	Delete(id uuid.UUID) error
}

type categoryRequest struct {
	Category models.Category `json:"category"`
}

type searchRequest struct {
	Query string `json:"query"`
}

// Handler serves the session API.
type Handler struct {
	sessions Sessions
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new instance of Handler.
func NewHandler(sessions Sessions, log *slog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	api.GET("/categories", h.ListCategories)

	sessions := api.Group("/sessions")
	sessions.POST("", h.CreateSession)
	sessions.GET("/:id", h.GetSession)
	sessions.DELETE("/:id", h.DeleteSession)
	sessions.PUT("/:id/category", h.SelectCategory)
	sessions.POST("/:id/search", h.Search)
	sessions.GET("/:id/stream", h.Stream)

	return router
}

// ListCategories GET /api/categories
func (h *Handler) ListCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default":    models.DefaultCategory,
		"categories": models.Categories(),
	})
}

// CreateSession POST /api/sessions - creates a session and runs its bootstrap. A location
// failure still answers 201: the snapshot carries the notice and the locating state.
func (h *Handler) CreateSession(c *gin.Context) {
	var req models.DeviceReport
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "Invalid JSON format: " + err.Error(),
			})
			return
		}
	}

	session := h.sessions.Create()
	if err := session.Bootstrap(c.Request.Context(), req, c.ClientIP()); err != nil {
		h.log.WarnContext(c.Request.Context(), "Session bootstrap incomplete", "session", session.ID(), "error", err)
	}

	c.JSON(http.StatusCreated, session.Snapshot())
}

// GetSession GET /api/sessions/:id
func (h *Handler) GetSession(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, session.Snapshot())
}

// DeleteSession DELETE /api/sessions/:id
func (h *Handler) DeleteSession(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.sessions.Delete(id); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// SelectCategory PUT /api/sessions/:id/category
func (h *Handler) SelectCategory(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON format: " + err.Error(),
		})
		return
	}

	if err := session.SelectCategory(c.Request.Context(), req.Category); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, session.Snapshot())
}

// Search POST /api/sessions/:id/search
func (h *Handler) Search(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON format: " + err.Error(),
		})
		return
	}

	if err := session.Search(c.Request.Context(), req.Query); err != nil {
		if !errors.Is(err, geocoding.ErrEmptyQuery) && !errors.Is(err, service.ErrNotReady) {
			h.log.ErrorContext(c.Request.Context(), "Search failed", "session", session.ID(), "error", err)
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, session.Snapshot())
}

func (h *Handler) lookup(c *gin.Context) (*service.Session, bool) {
	id, ok := parseID(c)
	if !ok {
		return nil, false
	}

	session, err := h.sessions.Get(id)
	if err != nil {
		writeError(c, err)
		return nil, false
	}

	return session, true
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_parameter",
			"message": "Invalid session ID",
		})
		return uuid.Nil, false
	}

	return id, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Session not found"})
	case errors.Is(err, service.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "not_ready", "message": "Session is not ready yet"})
	case errors.Is(err, geocoding.ErrEmptyCategory):
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_parameter", "message": "category is required"})
	case errors.Is(err, geocoding.ErrEmptyQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_parameter", "message": "query is required"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_error", "message": err.Error()})
	}
}
