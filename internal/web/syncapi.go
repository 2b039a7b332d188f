package web

import (
	"net/http"
	"time"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/sync"
)

func (s *Server) handleSyncPull(w http.ResponseWriter, r *http.Request) {
	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			s.writeError(w, &domain.ValidationError{Field: "since", Msg: "must be an RFC 3339 timestamp"})
			return
		}
		since = &t
	}
	resp, err := s.reconciler.Pull(r.Context(), since)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if resp.Decks == nil {
		resp.Decks = []domain.Deck{}
	}
	if resp.Cards == nil {
		resp.Cards = []domain.Card{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSyncPush(w http.ResponseWriter, r *http.Request) {
	var req sync.PushRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	resp, err := s.reconciler.Push(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if resp.CreatedDecks == nil {
		resp.CreatedDecks = []domain.Deck{}
	}
	if resp.CreatedCards == nil {
		resp.CreatedCards = []domain.Card{}
	}
	if resp.Conflicts == nil {
		resp.Conflicts = []sync.Conflict{}
	}
	writeJSON(w, http.StatusOK, resp)
}
