package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 30 * time.Second

// @Summary Stream session events
// @Description Server-sent events: qr, pair_success, connected, disconnected, message, receipt, presence and the rest, in the order they happened
// @Tags events
// @Produce text/event-stream
// @Param id path string true "Session ID"
// @Success 200 {string} string "event stream"
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id}/events [get]
func (s *Server) streamEvents(c *gin.Context) {
	sess, err := s.mgr.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}

	sub := sess.Hub().Subscribe()
	defer sess.Hub().Unsubscribe(sub)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Flush()

	s.log.Debug("sse subscriber connected", zap.String("session", sess.ID))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			s.log.Debug("sse subscriber gone", zap.String("session", sess.ID))
			return
		case ev, ok := <-sub.Events():
			if !ok {
				// Hub closed: the session was deleted.
				return
			}
			c.SSEvent(ev.Type, ev)
			c.Writer.Flush()
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"time": time.Now().Unix()})
			c.Writer.Flush()
		}
	}
}
