package web

import (
	"encoding/json"
	"net/http"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/study"
)

type createCardRequest struct {
	DeckID string          `json:"deck_id" validate:"required"`
	Front  json.RawMessage `json:"front_content" validate:"required"`
	Back   json.RawMessage `json:"back_content" validate:"required"`
	Tags   []string        `json:"tags" validate:"omitempty,max=20,dive,max=50"`
}

type updateCardRequest struct {
	Front json.RawMessage `json:"front_content"`
	Back  json.RawMessage `json:"back_content"`
	Tags  *[]string       `json:"tags" validate:"omitempty,max=20,dive,max=50"`
}

type reviewCardRequest struct {
	Rating    int  `json:"rating" validate:"required,min=1,max=4"`
	ElapsedMs *int `json:"elapsed_ms" validate:"omitempty,min=0"`
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req createCardRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, err)
		return
	}
	card, err := s.svc.CreateCard(r.Context(), req.DeckID, req.Front, req.Back, req.Tags)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.svc.ListCards(r.Context(), r.URL.Query().Get("deck_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.svc.GetCard(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	var req updateCardRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, err)
		return
	}
	card, err := s.svc.UpdateCard(r.Context(), r.PathValue("id"), study.CardUpdate{
		Front: req.Front,
		Back:  req.Back,
		Tags:  req.Tags,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.svc.DeleteCard(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleReviewCard(w http.ResponseWriter, r *http.Request) {
	var req reviewCardRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, err)
		return
	}
	card, err := s.svc.ReviewCard(r.Context(), r.PathValue("id"), domain.Rating(req.Rating), req.ElapsedMs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.ListReviews(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.ReviewLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleNextDueCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.svc.NextDueCard(r.Context(), r.URL.Query().Get("deck_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if card == nil {
		// No card due: the body is an explicit JSON null.
		writeJSON(w, http.StatusOK, json.RawMessage("null"))
		return
	}
	writeJSON(w, http.StatusOK, card)
}
