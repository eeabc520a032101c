package transport

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// streamMessage is pushed to websocket clients.
type streamMessage struct {
	Type     string `json:"type"`
	Snapshot any    `json:"snapshot"`
}

// Stream GET /api/sessions/:id/stream - upgrades to a websocket and pushes a snapshot after
// every session change. The stream ends when the client disconnects or the session is deleted.
func (h *Handler) Stream(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade error", "session", session.ID(), "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := session.Subscribe()
	defer cancel()

	// Reads only detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.log.Debug("Stream opened", "session", session.ID())

	if err := write(conn, session.Snapshot()); err != nil {
		return
	}

	for {
		select {
		case <-gone:
			h.log.Debug("Stream closed by client", "session", session.ID())
			return
		case snap, open := <-updates:
			if !open {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(writeWait))
				return
			}
			if err := write(conn, snap); err != nil {
				h.log.Debug("Stream write failed", "session", session.ID(), "error", err)
				return
			}
		}
	}
}

func write(conn *websocket.Conn, snapshot any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}

	return conn.WriteJSON(streamMessage{Type: "snapshot", Snapshot: snapshot})
}
