package web

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/fsrs"
	"github.com/conorfennell/recall/internal/storage"
	"github.com/conorfennell/recall/internal/study"
	syncpkg "github.com/conorfennell/recall/internal/sync"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	scheduler, err := fsrs.NewScheduler(fsrs.DefaultParams())
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	validate := domain.NewValidator()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := study.New(db, scheduler, validate)
	reconciler := syncpkg.NewReconciler(db, validate, log)
	return NewServer(svc, reconciler, validate, log, []string{"http://localhost:5173"})
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(blob)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %s: %v", rec.Body.String(), err)
	}
	return v
}

func createDeck(t *testing.T, s *Server, name string) domain.Deck {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/decks", map[string]string{"name": name})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create deck: status %d body %s", rec.Code, rec.Body.String())
	}
	return decodeResponse[domain.Deck](t, rec)
}

func createCard(t *testing.T, s *Server, deckID string) domain.Card {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/cards", map[string]any{
		"deck_id":       deckID,
		"front_content": "hola",
		"back_content":  "hello",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create card: status %d body %s", rec.Code, rec.Body.String())
	}
	return decodeResponse[domain.Card](t, rec)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDeckLifecycle(t *testing.T) {
	s := newTestServer(t)
	deck := createDeck(t, s, "Spanish")

	rec := doJSON(t, s, http.MethodGet, "/api/v1/decks/"+deck.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPatch, "/api/v1/decks/"+deck.ID, map[string]string{"name": "Castilian"})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: status %d body %s", rec.Code, rec.Body.String())
	}
	if got := decodeResponse[domain.Deck](t, rec); got.Name != "Castilian" {
		t.Errorf("name = %q after rename", got.Name)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/v1/decks/"+deck.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/decks/"+deck.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status %d, want 404", rec.Code)
	}
}

func TestCreateDeckDuplicateName(t *testing.T) {
	s := newTestServer(t)
	createDeck(t, s, "Spanish")
	rec := doJSON(t, s, http.MethodPost, "/api/v1/decks", map[string]string{"name": "Spanish"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCreateDeckMissingName(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/decks", map[string]string{"description": "no name"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeResponse[map[string]string](t, rec)
	if resp["error"] == "" {
		t.Error("error body missing")
	}
}

func TestCreateCardInUnknownDeck(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/cards", map[string]any{
		"deck_id":       "01HZZZZZZZZZZZZZZZZZZZZZZZ",
		"front_content": "hola",
		"back_content":  "hello",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestReviewFlow(t *testing.T) {
	s := newTestServer(t)
	deck := createDeck(t, s, "Spanish")
	card := createCard(t, s, deck.ID)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/review/next-card?deck_id="+deck.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("next-card: status %d", rec.Code)
	}
	if next := decodeResponse[*domain.Card](t, rec); next == nil || next.ID != card.ID {
		t.Fatalf("next = %v, want the new card", next)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/cards/"+card.ID+"/review", map[string]int{"rating": 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("review: status %d body %s", rec.Code, rec.Body.String())
	}
	reviewed := decodeResponse[domain.Card](t, rec)
	if reviewed.State != domain.StateLearning || reviewed.DueAt == nil {
		t.Errorf("reviewed card = state %s due %v", reviewed.State, reviewed.DueAt)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/cards/"+card.ID+"/reviews", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reviews: status %d", rec.Code)
	}
	entries := decodeResponse[[]domain.ReviewLogEntry](t, rec)
	if len(entries) != 1 || entries[0].Rating != domain.Good {
		t.Errorf("entries = %+v", entries)
	}

	// The card is now scheduled in the future, so nothing is due.
	rec = doJSON(t, s, http.MethodGet, "/api/v1/review/next-card?deck_id="+deck.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("next-card: status %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "null" {
		t.Errorf("body = %q, want null", body)
	}
}

func TestReviewInvalidRating(t *testing.T) {
	s := newTestServer(t)
	deck := createDeck(t, s, "Spanish")
	card := createCard(t, s, deck.ID)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/cards/"+card.ID+"/review", map[string]int{"rating": 9})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestReviewDeletedCard(t *testing.T) {
	s := newTestServer(t)
	deck := createDeck(t, s, "Spanish")
	card := createCard(t, s, deck.ID)

	if rec := doJSON(t, s, http.MethodDelete, "/api/v1/cards/"+card.ID, nil); rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec := doJSON(t, s, http.MethodPost, "/api/v1/cards/"+card.ID+"/review", map[string]int{"rating": 3})
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("status = %d, want 412", rec.Code)
	}
}

func TestSyncRoundTrip(t *testing.T) {
	s := newTestServer(t)
	deck := createDeck(t, s, "Spanish")
	createCard(t, s, deck.ID)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/sync/pull", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pull: status %d", rec.Code)
	}
	pull := decodeResponse[syncpkg.PullResponse](t, rec)
	if len(pull.Decks) != 1 || len(pull.Cards) != 1 {
		t.Fatalf("pull = %d decks / %d cards", len(pull.Decks), len(pull.Cards))
	}
	if pull.ServerTimestamp.IsZero() {
		t.Error("server_timestamp missing")
	}

	push := map[string]any{
		"new_decks": []map[string]string{{"name": "History"}},
	}
	rec = doJSON(t, s, http.MethodPost, "/api/v1/sync/push", push)
	if rec.Code != http.StatusOK {
		t.Fatalf("push: status %d body %s", rec.Code, rec.Body.String())
	}
	pushed := decodeResponse[syncpkg.PushResponse](t, rec)
	if len(pushed.CreatedDecks) != 1 || len(pushed.Conflicts) != 0 {
		t.Fatalf("push = %+v", pushed)
	}

	cursor := pull.ServerTimestamp.Format(time.RFC3339Nano)
	rec = doJSON(t, s, http.MethodGet, "/api/v1/sync/pull?since="+cursor, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pull with cursor: status %d body %s", rec.Code, rec.Body.String())
	}
	delta := decodeResponse[syncpkg.PullResponse](t, rec)
	for _, d := range delta.Decks {
		if d.Name == "Spanish" && d.UpdatedAt.Before(pull.ServerTimestamp) {
			t.Errorf("unchanged deck returned in delta: %+v", d)
		}
	}
}

func TestSyncPullBadCursor(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/v1/sync/pull?since=yesterday", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/decks", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("allow-origin = %q", got)
	}
}

func TestCORSUnknownOriginNotEchoed(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow-origin = %q, want empty", got)
	}
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/decks", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
