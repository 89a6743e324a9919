package server

import (
	"sync"
	"time"

	"smartguard-relay/src/fanout"
	"smartguard-relay/src/logger"
	"smartguard-relay/src/models"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	closeGrace     = time.Second
	maxMessageSize = 4096 // clients only send control frames
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

// Client is the websocket transport for one session. The hub's delivery loop
// is its only writer; readPump is its only reader.
type Client struct {
	conn      *websocket.Conn
	pongWait  time.Duration
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, pongWait time.Duration) *Client {
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	return &Client{conn: conn, pongWait: pongWait}
}

// -----------------------------------------------------------------------------
// ISubscriberTransport
// -----------------------------------------------------------------------------

func (c *Client) WriteReading(reading models.MReading, deadline time.Time) error {
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteJSON(reading)
}

// -----------------------------------------------------------------------------

func (c *Client) Ping(deadline time.Time) error {
	return c.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

// -----------------------------------------------------------------------------

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		err = c.conn.Close()
	})
	return err
}

// -----------------------------------------------------------------------------
// readPump - watchdog for the connection
// Client frames are discarded; only pong and close matter.
// -----------------------------------------------------------------------------

func (c *Client) readPump(session *fanout.Session, hub *fanout.Hub, log *logger.Logger) {
	defer func() {
		session.BeginDrain()
		hub.Unsubscribe(session.ID())
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info("WebSocket error on session %s: %v", session.ID(), err)
			}
			return
		}
	}
}
