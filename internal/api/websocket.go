package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"questgraph/pkg/model"
	"questgraph/pkg/session"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsMaxMessage = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI is served from anywhere on the local network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage is pushed to clients. Type is "state", "update" or "error".
type wsMessage struct {
	Type   string            `json:"type"`
	Update *session.Update   `json:"update,omitempty"`
	State  *session.Snapshot `json:"state,omitempty"`
	Graph  *model.GraphView  `json:"graph,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// wsCommand is sent by clients. Type is "choose" or "reset".
type wsCommand struct {
	Type   string `json:"type"`
	Ending string `json:"ending,omitempty"`
}

// HandleWS streams session updates with a fresh graph view, and accepts
// choose/reset commands.
// GET /api/quest/ws
func (h *QuestHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := h.sess.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Replies from the reader go through the writer; gorilla allows one writer.
	replies := make(chan wsMessage, 8)
	go h.readCommands(ctx, cancel, conn, replies)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	state := h.sess.Snapshot()
	graph := h.graph(-1)
	if err := writeWS(conn, wsMessage{Type: "state", State: &state, Graph: &graph}); err != nil {
		return
	}
	slog.Debug("WebSocket client connected", "remote", r.RemoteAddr)

	for {
		var msg wsMessage
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			g := h.graph(-1)
			msg = wsMessage{Type: "update", Update: &u, Graph: &g}
		case msg = <-replies:
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}
		if err := writeWS(conn, msg); err != nil {
			slog.Debug("WebSocket write failed", "error", err)
			return
		}
	}
}

func (h *QuestHandler) readCommands(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, replies chan<- wsMessage) {
	defer cancel()

	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("WebSocket read failed", "error", err)
			}
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			reply(ctx, replies, wsMessage{Type: "error", Error: "invalid command"})
			continue
		}

		switch cmd.Type {
		case "choose":
			if _, err := h.sess.Choose(ctx, cmd.Ending); err != nil {
				reply(ctx, replies, wsMessage{Type: "error", Error: err.Error()})
			}
		case "reset":
			if err := h.sess.Start(ctx); err != nil {
				reply(ctx, replies, wsMessage{Type: "error", Error: err.Error()})
			}
		default:
			reply(ctx, replies, wsMessage{Type: "error", Error: "unknown command " + cmd.Type})
		}
	}
}

func reply(ctx context.Context, replies chan<- wsMessage, msg wsMessage) {
	select {
	case replies <- msg:
	case <-ctx.Done():
	}
}

func writeWS(conn *websocket.Conn, msg wsMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(msg)
}
