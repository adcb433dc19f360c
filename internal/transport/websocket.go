// Package transport hosts the WebSocket handler that streams a terminal
// session's input/output over a framed JSON connection.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"termbroker/internal/auth"
	"termbroker/internal/logging"
	"termbroker/internal/metrics"
	"termbroker/internal/terminal"
)

const (
	writePollInterval = 30 * time.Millisecond
	pingInterval      = 30 * time.Second
	writeWait         = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// inboundFrame is a client -> server message.
type inboundFrame struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Rows int    `json:"rows,omitempty"`
	Cols int    `json:"cols,omitempty"`
}

// outboundFrame is a server -> client message.
type outboundFrame struct {
	Type    string `json:"type"`
	Data    string `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Handler wires the Session Manager and auth service to the
// /terminal/ws/{session_id} upgrade endpoint.
type Handler struct {
	manager *terminal.Manager
	auth    *auth.AuthService
	ws      *metrics.WebSocketMetricsRecorder
}

// NewHandler builds a transport Handler.
func NewHandler(manager *terminal.Manager, authService *auth.AuthService) *Handler {
	return &Handler{
		manager: manager,
		auth:    authService,
		ws:      metrics.NewWebSocketMetricsRecorder(),
	}
}

// ServeTerminal upgrades the request and runs the per-client read/write
// pump until the client disconnects or the session ends.
func (h *Handler) ServeTerminal(c *gin.Context) {
	sessionID := c.Param("session_id")

	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token is required", "code": "AUTH_FAILED"})
		return
	}
	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "AUTH_FAILED"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.S().Warnw("websocket upgrade failed", "session_id", sessionID, "err", err)
		return
	}
	defer conn.Close()

	h.ws.ConnectionOpened("terminal")
	defer h.ws.ConnectionClosed("terminal")

	clientID := uuid.NewString()
	ctx := c.Request.Context()

	sess, recovered, err := h.resolveSession(ctx, c, sessionID, claims.Username)
	if err != nil {
		writeFrame(conn, outboundFrame{Type: "reconnect_failed", Message: err.Error()})
		return
	}

	backlog := sess.Attach(clientID)
	if len(backlog) > 0 {
		if recovered || c.Query("reconnect") == "true" {
			writeFrame(conn, outboundFrame{Type: "reconnect", Data: string(backlog), Message: "session recovered"})
		} else {
			writeFrame(conn, outboundFrame{Type: "output", Data: string(backlog)})
		}
	}

	done := make(chan struct{})
	go h.writePump(conn, sess, clientID, done)
	h.readPump(conn, sess, sessionID, clientID)

	close(done)
	h.manager.Detach(ctx, sessionID, clientID)
}

// resolveSession implements the attach-existing | reconnect-from-store |
// create-new dispatch from the Session Manager's attach path.
func (h *Handler) resolveSession(ctx context.Context, c *gin.Context, sessionID, owner string) (*terminal.Session, bool, error) {
	if sess, ok := h.manager.Get(sessionID); ok {
		if sess.Owner != owner {
			return nil, false, terminal.ErrNotFound
		}
		return sess, false, nil
	}

	reconnect := c.Query("reconnect") == "true"
	if reconnect {
		sess, _, err := h.manager.Reconnect(ctx, sessionID, owner)
		if err == nil && sess != nil {
			return sess, true, nil
		}
		if err == terminal.ErrNotFound || err == terminal.ErrExpired {
			return nil, false, err
		}
	}

	cwd := c.Query("cwd")
	name := c.Query("name")
	sess, err := h.manager.Create(ctx, sessionID, owner, name, cwd, uint16(24), uint16(80))
	if err != nil {
		return nil, false, err
	}
	return sess, false, nil
}

func (h *Handler) readPump(conn *websocket.Conn, sess *terminal.Session, sessionID, clientID string) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			logging.S().Warnw("malformed frame dropped", "session_id", sessionID, "client_id", clientID)
			continue
		}
		h.ws.MessageReceived(frame.Type, len(raw))

		switch frame.Type {
		case "input":
			if err := sess.Write([]byte(frame.Data)); err != nil {
				writeFrame(conn, outboundFrame{Type: "error", Message: "session closed"})
				return
			}
		case "resize":
			_ = sess.Resize(context.Background(), uint16(frame.Rows), uint16(frame.Cols))
		case "ping":
			writeFrame(conn, outboundFrame{Type: "pong"})
		case "close":
			h.manager.DetachAndMaybeClose(context.Background(), sessionID, clientID)
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, sess *terminal.Session, clientID string, done <-chan struct{}) {
	ticker := time.NewTicker(writePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !sess.IsAlive() {
				writeFrame(conn, outboundFrame{Type: "error", Message: "session closed"})
				return
			}
			if out := sess.ReadFor(clientID); len(out) > 0 {
				if err := writeFrame(conn, outboundFrame{Type: "output", Data: string(out)}); err != nil {
					return
				}
				h.ws.MessageSent("output", len(out))
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, f outboundFrame) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}
