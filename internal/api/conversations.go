package api

import (
	"net/http"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/user/llmchat/internal/chat"
	"github.com/user/llmchat/internal/db"
)

type conversationRequest struct {
	ProjectID        *string `json:"project_id"`
	Title            *string `json:"title"`
	ProviderOverride *string `json:"provider_override"`
	ModelOverride    *string `json:"model_override"`
}

type messagesResponse struct {
	Messages []chat.Message `json:"messages"`
}

// listConversations filters by projectId and, when q is set, keeps only
// titles that fuzzy-match q, best match first.
func (h *handler) listConversations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	conversations, err := h.conversations.List(r.Context(), db.ConversationFilter{ProjectID: query.Get("projectId")})
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if q := strings.TrimSpace(query.Get("q")); q != "" {
		conversations = matchTitles(q, conversations)
	}
	jsonResponse(w, http.StatusOK, conversations)
}

func matchTitles(q string, conversations []*db.Conversation) []*db.Conversation {
	titles := make([]string, len(conversations))
	for i, c := range conversations {
		titles[i] = c.Title
	}
	matches := fuzzy.Find(q, titles)
	out := make([]*db.Conversation, 0, len(matches))
	for _, m := range matches {
		out = append(out, conversations[m.Index])
	}
	return out
}

func (h *handler) createConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	conv := &db.Conversation{}
	req.apply(conv)
	if conv.ProjectID != "" {
		project, err := h.projects.Get(r.Context(), conv.ProjectID)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if project == nil {
			jsonError(w, http.StatusBadRequest, "Project not found")
			return
		}
	}
	if err := h.conversations.Create(r.Context(), conv); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusCreated, conv)
}

func (h *handler) updateConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.loadConversation(w, r)
	if !ok {
		return
	}
	var req conversationRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.ProjectID = nil
	req.apply(conv)
	if err := h.conversations.Update(r.Context(), conv); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	conv.Messages = nil
	jsonResponse(w, http.StatusOK, conv)
}

func (h *handler) deleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.conversations.Delete(r.Context(), r.PathValue("id")); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, successResponse{Success: true})
}

func (h *handler) conversationMessages(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.loadConversation(w, r)
	if !ok {
		return
	}
	messages := conv.Messages
	if messages == nil {
		messages = []chat.Message{}
	}
	jsonResponse(w, http.StatusOK, messagesResponse{Messages: messages})
}

func (h *handler) loadConversation(w http.ResponseWriter, r *http.Request) (*db.Conversation, bool) {
	conv, err := h.conversations.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if conv == nil {
		jsonError(w, http.StatusNotFound, "Conversation not found")
		return nil, false
	}
	return conv, true
}

func (req conversationRequest) apply(c *db.Conversation) {
	if req.ProjectID != nil {
		c.ProjectID = strings.TrimSpace(*req.ProjectID)
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) != "" {
		c.Title = strings.TrimSpace(*req.Title)
	}
	if req.ProviderOverride != nil {
		c.ProviderOverride = strings.TrimSpace(*req.ProviderOverride)
	}
	if req.ModelOverride != nil {
		c.ModelOverride = strings.TrimSpace(*req.ModelOverride)
	}
}
