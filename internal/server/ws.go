package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/teamxray/xray/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The API is fronted by a proxy that owns origin policy.
		return true
	},
}

const keepaliveInterval = 60 * time.Second

// streamJob upgrades to WebSocket and relays a job's event stream. The
// subscriber's first event reflects current job state; idle connections
// get periodic pings and are dropped on send failure.
func (s *Server) streamJob(c *gin.Context) {
	id := c.Param("job_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe, ok := s.registry.Subscribe(id)
	if !ok {
		conn.WriteJSON(models.Event{Type: models.EventError, Message: "Job not found"})
		return
	}
	defer unsubscribe()

	// Reader goroutine: drains client messages and surfaces disconnect.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if ev.Type == models.EventComplete || ev.Type == models.EventError {
				return
			}
		case <-ticker.C:
			if err := conn.WriteJSON(models.Event{Type: models.EventPing}); err != nil {
				return
			}
		case <-disconnected:
			return
		}
	}
}
