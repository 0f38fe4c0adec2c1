// Package api exposes the HTTP surface: template management, notification
// submission and message reads.
package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"notification-workers/internal/dispatch"
	"notification-workers/internal/models"
	"notification-workers/internal/templates"
)

// MessageStore is the message surface the read endpoints need.
type MessageStore interface {
	MarkRead(ctx context.Context, id uuid.UUID) (*models.NotificationMessage, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.NotificationMessage, error)
}

// Handler bundles the services behind the HTTP routes.
type Handler struct {
	templates    *templates.Service
	orchestrator *dispatch.Orchestrator
	messages     MessageStore
	logger       *zap.Logger
}

func NewHandler(ts *templates.Service, o *dispatch.Orchestrator, messages MessageStore, logger *zap.Logger) *Handler {
	return &Handler{
		templates:    ts,
		orchestrator: o,
		messages:     messages,
		logger:       logger,
	}
}

// Router builds the gin engine with all routes attached. Everything but the
// health probe lives under the versioned prefix.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", h.health)

	v1 := r.Group("/api/v1")

	t := v1.Group("/templates")
	{
		t.POST("", h.createTemplate)
		t.GET("", h.listTemplates)
		t.GET("/:id", h.getTemplate)
		t.PUT("/:id", h.updateTemplate)
		t.DELETE("/:id", h.deleteTemplate)
		t.POST("/:id/render", h.renderTemplate)
	}

	n := v1.Group("/notifications")
	{
		n.POST("/:slug", h.createNotification)
		n.GET("/:id", h.getNotification)
	}

	m := v1.Group("/messages")
	{
		m.GET("", h.listMessages)
		m.POST("/:id/read", h.readMessage)
	}

	return r
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
