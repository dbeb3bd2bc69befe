package server

import (
	"net/http"
	"strconv"
)

// conversationPageSize is the message page size for the conversation view.
const conversationPageSize = 50

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.reader.ListConversations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs, "count": len(convs)})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	conv, err := s.reader.GetConversation(r.Context(), id)
	if err != nil {
		writeError(w, statusForErr(err), err)
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page = n
		}
	}
	q := r.URL.Query().Get("q")

	msgs, err := s.reader.ConversationMessages(r.Context(), id, q, page, conversationPageSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation": conv,
		"messages":     msgs,
		"page":         page,
		"q":            q,
	})
}
