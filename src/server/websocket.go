package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// WebSocket Handler
// -----------------------------------------------------------------------------

// handleWebSocket registers a session, upgrades the connection and then
// blocks in the hub's delivery loop until the session ends.
func (s *RelayServer) handleWebSocket(c *gin.Context) {
	session, err := s.hub.Subscribe(c.Request.RemoteAddr)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, errorBody(err))
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		s.hub.Unsubscribe(session.ID())
		return
	}

	client := newClient(conn, s.Config.FanOut.PongWait)
	session.Activate()
	s.Logger.Info("Client %s connected as session %s", c.Request.RemoteAddr, session.ID())

	go client.readPump(session, s.hub, s.Logger)

	if err := s.hub.Serve(c.Request.Context(), session, client); err != nil {
		s.Logger.Info("Session %s ended: %v", session.ID(), err)
		return
	}
	s.Logger.Info("Session %s closed", session.ID())
}
