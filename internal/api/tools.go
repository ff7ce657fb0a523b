package api

import "net/http"

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *handler) listTools(w http.ResponseWriter, r *http.Request) {
	list := h.tools.List()
	out := make([]toolInfo, 0, len(list))
	for _, t := range list {
		out = append(out, toolInfo{Name: t.Name, Description: t.Description})
	}
	jsonResponse(w, http.StatusOK, out)
}
