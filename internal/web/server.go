// Package web exposes the service over a JSON HTTP API.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/study"
	"github.com/conorfennell/recall/internal/sync"
)

// Server holds the dependencies for the HTTP API.
type Server struct {
	svc         *study.Service
	reconciler  *sync.Reconciler
	validate    *domain.Validator
	log         *slog.Logger
	router      *http.ServeMux
	corsOrigins []string
}

// NewServer creates and configures a new API server.
func NewServer(svc *study.Service, reconciler *sync.Reconciler, validate *domain.Validator, log *slog.Logger, corsOrigins []string) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		svc:         svc,
		reconciler:  reconciler,
		validate:    validate,
		log:         log,
		router:      http.NewServeMux(),
		corsOrigins: corsOrigins,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface, applying the middleware
// chain around the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handler := s.withLogging(s.withCORS(s.router))
	handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /api/v1/health", s.handleHealth)

	s.router.HandleFunc("GET /api/v1/decks", s.handleListDecks)
	s.router.HandleFunc("POST /api/v1/decks", s.handleCreateDeck)
	s.router.HandleFunc("GET /api/v1/decks/{id}", s.handleGetDeck)
	s.router.HandleFunc("PATCH /api/v1/decks/{id}", s.handleUpdateDeck)
	s.router.HandleFunc("DELETE /api/v1/decks/{id}", s.handleDeleteDeck)

	s.router.HandleFunc("GET /api/v1/cards", s.handleListCards)
	s.router.HandleFunc("POST /api/v1/cards", s.handleCreateCard)
	s.router.HandleFunc("GET /api/v1/cards/{id}", s.handleGetCard)
	s.router.HandleFunc("PATCH /api/v1/cards/{id}", s.handleUpdateCard)
	s.router.HandleFunc("DELETE /api/v1/cards/{id}", s.handleDeleteCard)
	s.router.HandleFunc("POST /api/v1/cards/{id}/review", s.handleReviewCard)
	s.router.HandleFunc("GET /api/v1/cards/{id}/reviews", s.handleListReviews)

	s.router.HandleFunc("GET /api/v1/review/next-card", s.handleNextDueCard)

	s.router.HandleFunc("GET /api/v1/sync/pull", s.handleSyncPull)
	s.router.HandleFunc("POST /api/v1/sync/push", s.handleSyncPush)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		verr *domain.ValidationError
		nerr *domain.NotFoundError
		cerr *domain.ConflictError
		perr *domain.PreconditionError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Field: verr.Field})
	case errors.As(err, &nerr):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: nerr.Error()})
	case errors.As(err, &cerr):
		writeJSON(w, http.StatusConflict, errorResponse{Error: cerr.Error()})
	case errors.As(err, &perr):
		writeJSON(w, http.StatusPreconditionFailed, errorResponse{Error: perr.Error()})
	default:
		s.log.Error("internal error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &domain.ValidationError{Msg: "invalid request body"}
	}
	return nil
}
