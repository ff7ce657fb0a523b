package orchestrator

import (
	"encoding/json"

	"github.com/user/llmchat/internal/chat"
)

const (
	EventChunk     = "chunk"
	EventToolStart = "tool_start"
	EventToolDone  = "tool_done"
	EventDone      = "done"
	EventError     = "error"
)

// Event is one item of a turn's outbound stream. Exactly one done or error
// event ends every stream.
type Event struct {
	Type           string
	Content        string
	Tool           string
	ID             string
	Result         string
	ConversationID string
	Message        string
}

// MarshalJSON writes only the fields that belong to e.Type.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventChunk:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		}{e.Type, e.Content})
	case EventToolStart:
		return json.Marshal(struct {
			Type string `json:"type"`
			Tool string `json:"tool"`
			ID   string `json:"id"`
		}{e.Type, e.Tool, e.ID})
	case EventToolDone:
		return json.Marshal(struct {
			Type   string `json:"type"`
			Tool   string `json:"tool"`
			ID     string `json:"id"`
			Result string `json:"result"`
		}{e.Type, e.Tool, e.ID, e.Result})
	case EventDone:
		return json.Marshal(struct {
			Type           string `json:"type"`
			ConversationID string `json:"conversationId"`
		}{e.Type, e.ConversationID})
	default:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}{e.Type, e.Message})
	}
}

// Terminal reports whether e ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// Request is one inbound user turn.
type Request struct {
	ConversationID string              `json:"conversationId,omitempty"`
	Message        string              `json:"message"`
	ProjectID      string              `json:"projectId,omitempty"`
	BackendID      string              `json:"backendId,omitempty"`
	Model          string              `json:"model,omitempty"`
	Files          []chat.FileArtifact `json:"files,omitempty"`
}
