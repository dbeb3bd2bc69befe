package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/raphaelgruber/slackvault/internal/models"
)

type searchRequest struct {
	Query       string  `json:"query"`
	HybridAlpha float64 `json:"hybrid_alpha"`
	Limit       int     `json:"limit"`
}

// searchResultView annotates an engine result with conversation details at
// the view boundary.
type searchResultView struct {
	models.SearchResult
	Conversation *conversationRef `json:"conversation,omitempty"`
}

type conversationRef struct {
	Name string      `json:"name"`
	Kind models.Kind `json:"kind"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid search request: %w", err))
		return
	}

	results, err := s.searcher.Search(r.Context(), req.Query, req.HybridAlpha, req.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	views := s.annotate(r, results)
	writeJSON(w, http.StatusOK, map[string]any{
		"results": views,
		"count":   len(views),
	})
}

// annotate resolves conversation names for the result set in one query.
func (s *Server) annotate(r *http.Request, results []models.SearchResult) []searchResultView {
	views := make([]searchResultView, 0, len(results))
	if len(results) == 0 {
		return views
	}

	seen := make(map[string]bool)
	var ids []string
	for _, res := range results {
		if res.ConversationID != "" && !seen[res.ConversationID] {
			seen[res.ConversationID] = true
			ids = append(ids, res.ConversationID)
		}
	}

	convs, err := s.reader.GetConversations(r.Context(), ids)
	if err != nil {
		// Results are still useful without names.
		convs = nil
	}

	for _, res := range results {
		view := searchResultView{SearchResult: res}
		if conv, ok := convs[res.ConversationID]; ok {
			view.Conversation = &conversationRef{Name: conv.Name, Kind: conv.Kind}
		}
		views = append(views, view)
	}
	return views
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.reader.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

// contextWindow is how many messages are returned on each side.
const contextWindow = 5

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	convID := r.PathValue("conversation_id")
	ts, err := time.Parse(time.RFC3339, r.PathValue("ts"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid timestamp: %w", err))
		return
	}

	msgs, err := s.reader.ContextAround(r.Context(), convID, ts.UTC(), contextWindow)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}
