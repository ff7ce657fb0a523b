package api

import (
	"context"
	"encoding/json"
	"net/http"

	"nhooyr.io/websocket"

	"github.com/user/llmchat/internal/orchestrator"
)

// chatWebSocket runs turns over a WebSocket. Each text message from the
// client is a chat request; every event of that turn is sent back as one
// text message. Turns on one connection run one at a time.
func (h *handler) chatWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.orchestrator == nil {
		jsonError(w, http.StatusServiceUnavailable, "chat unavailable")
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(maxBodyBytes)

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				h.logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var req orchestrator.Request
		if err := json.Unmarshal(data, &req); err != nil {
			if writeWSEvent(ctx, conn, orchestrator.Event{Type: orchestrator.EventError, Message: "invalid JSON body"}) != nil {
				return
			}
			continue
		}
		if msg := validateChatRequest(req); msg != "" {
			if writeWSEvent(ctx, conn, orchestrator.Event{Type: orchestrator.EventError, Message: msg}) != nil {
				return
			}
			continue
		}

		turnCtx, cancel := context.WithCancel(ctx)
		failed := false
		for ev := range h.orchestrator.Chat(turnCtx, req) {
			if failed {
				continue
			}
			if err := writeWSEvent(turnCtx, conn, ev); err != nil {
				failed = true
				cancel()
			}
		}
		cancel()
		if failed {
			return
		}
	}
}

func writeWSEvent(ctx context.Context, conn *websocket.Conn, ev orchestrator.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
