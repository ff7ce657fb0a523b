package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/user/llmchat/internal/orchestrator"
)

func validateChatRequest(req orchestrator.Request) string {
	if strings.TrimSpace(req.Message) == "" && len(req.Files) == 0 {
		return "message is required"
	}
	return ""
}

// chatSSE streams one turn as text/event-stream, one "data: <json>" frame per
// event.
func (h *handler) chatSSE(w http.ResponseWriter, r *http.Request) {
	if h.orchestrator == nil {
		jsonError(w, http.StatusServiceUnavailable, "chat unavailable")
		return
	}
	var req orchestrator.Request
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := validateChatRequest(req); msg != "" {
		jsonError(w, http.StatusBadRequest, msg)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range h.orchestrator.Chat(r.Context(), req) {
		if err := writeSSE(w, ev); err != nil {
			h.logger.Debug("sse write failed", "error", err)
			continue
		}
		flusher.Flush()
	}
}

func writeSSE(w http.ResponseWriter, ev orchestrator.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
