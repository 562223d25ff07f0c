package handler

import (
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/marketplace_api/internal/middleware"
	"github.com/GTDGit/marketplace_api/internal/sse"
)

// SSEHandler handles Server-Sent Events for real-time request and payment updates.
type SSEHandler struct {
	hub       *sse.Hub
	keepAlive time.Duration
}

// NewSSEHandler creates a new SSEHandler.
func NewSSEHandler(hub *sse.Hub) *SSEHandler {
	return &SSEHandler{hub: hub, keepAlive: 30 * time.Second}
}

// Stream handles GET /v1/events?token=<jwt>
// EventSource API cannot set custom headers, so JWTMiddleware also reads the query param.
func (h *SSEHandler) Stream(c *gin.Context) {
	userID := middleware.GetUserID(c)
	connID := fmt.Sprintf("%s-%d-%d", middleware.GetRole(c), userID, time.Now().UnixNano())

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // Disable nginx buffering

	client := h.hub.Register(connID, userID)
	defer h.hub.Unregister(connID)

	c.SSEvent("connected", gin.H{
		"connectionId": connID,
		"message":      "SSE connection established",
		"timestamp":    time.Now().Format(time.RFC3339),
	})
	c.Writer.Flush()

	log.Info().Str("conn_id", connID).Int64("user_id", userID).Msg("SSE stream started")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case data, ok := <-client.Events:
			if !ok {
				return false
			}
			c.SSEvent("notification", string(data))
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"timestamp": time.Now().Format(time.RFC3339)})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
