// Package sync reconciles an offline client's state with the server's
// authoritative store. Pull hands out changes past a timestamp cursor; Push
// applies client changes under last-write-wins, reporting conflicts as
// response data rather than errors. A whole push commits atomically:
// either every accepted change lands or, on a store failure, none do.
package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/storage"
)

// Conflict describes one rejected change. ClientTimestamp and
// ServerTimestamp are set for last-write-wins rejections; Message covers
// the other cases (duplicate name, missing entity, invalid payload).
type Conflict struct {
	Type            string     `json:"type"` // "deck" or "card"
	ID              string     `json:"id,omitempty"`
	Message         string     `json:"message,omitempty"`
	ClientTimestamp *time.Time `json:"client_timestamp,omitempty"`
	ServerTimestamp *time.Time `json:"server_timestamp,omitempty"`
}

// PullResponse carries every entity changed after the client's cursor.
// ServerTimestamp becomes the client's next cursor.
type PullResponse struct {
	ServerTimestamp time.Time     `json:"server_timestamp"`
	Decks           []domain.Deck `json:"decks"`
	Cards           []domain.Card `json:"cards"`
}

// PushRequest carries the client's local changes. New entities have no id;
// updated entities carry the id and the updated_at the client last saw.
type PushRequest struct {
	ClientTimestamp time.Time     `json:"client_timestamp"`
	NewDecks        []domain.Deck `json:"new_decks"`
	NewCards        []domain.Card `json:"new_cards"`
	UpdatedDecks    []domain.Deck `json:"updated_decks"`
	UpdatedCards    []domain.Card `json:"updated_cards"`
}

// PushResponse reports what the server created and which changes it
// rejected.
type PushResponse struct {
	CreatedDecks []domain.Deck `json:"created_decks"`
	CreatedCards []domain.Card `json:"created_cards"`
	Conflicts    []Conflict    `json:"conflicts"`
}

// Reconciler implements the pull/push protocol against the store.
type Reconciler struct {
	db       *storage.DB
	validate *domain.Validator
	log      *slog.Logger
}

// NewReconciler wires a Reconciler.
func NewReconciler(db *storage.DB, validate *domain.Validator, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{db: db, validate: validate, log: log}
}

// Pull returns every deck and card updated strictly after since, including
// soft-deleted entities so clients can tombstone locally. A nil since means
// first sync: everything is returned. The response timestamp is taken from
// the same clock that assigns updated_at, and is taken before the queries
// run, so an entity can be delivered twice across consecutive pulls but
// never missed.
func (r *Reconciler) Pull(ctx context.Context, since *time.Time) (*PullResponse, error) {
	var resp PullResponse
	err := r.db.InTx(ctx, func(tx *storage.Tx) error {
		resp.ServerTimestamp = tx.Now()
		var err error
		if since == nil {
			resp.Decks, err = tx.ListDecks(true)
			if err != nil {
				return err
			}
			resp.Cards, err = tx.ListCards("", true)
			return err
		}
		resp.Decks, err = tx.DecksUpdatedSince(*since)
		if err != nil {
			return err
		}
		resp.Cards, err = tx.CardsUpdatedSince(*since)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Push applies the client's changes in submitted order inside one
// transaction. A conflict on one entity never blocks the others. Only a
// store failure returns an error, rolling back the entire push.
func (r *Reconciler) Push(ctx context.Context, req PushRequest) (*PushResponse, error) {
	resp := &PushResponse{}
	err := r.db.InTx(ctx, func(tx *storage.Tx) error {
		for i := range req.NewDecks {
			if err := r.createDeck(tx, &req.NewDecks[i], resp); err != nil {
				return err
			}
		}
		for i := range req.NewCards {
			if err := r.createCard(tx, &req.NewCards[i], resp); err != nil {
				return err
			}
		}
		for i := range req.UpdatedDecks {
			if err := r.updateDeck(tx, &req.UpdatedDecks[i], resp); err != nil {
				return err
			}
		}
		for i := range req.UpdatedCards {
			if err := r.updateCard(tx, &req.UpdatedCards[i], resp); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.Info("push reconciled",
		"created_decks", len(resp.CreatedDecks),
		"created_cards", len(resp.CreatedCards),
		"conflicts", len(resp.Conflicts),
	)
	return resp, nil
}

func (r *Reconciler) createDeck(tx *storage.Tx, in *domain.Deck, resp *PushResponse) error {
	name, err := r.validate.DeckName(in.Name)
	if err != nil {
		resp.Conflicts = append(resp.Conflicts, Conflict{Type: "deck", Message: err.Error()})
		return nil
	}
	description, err := r.validate.DeckDescription(in.Description)
	if err != nil {
		resp.Conflicts = append(resp.Conflicts, Conflict{Type: "deck", Message: err.Error()})
		return nil
	}
	existing, err := tx.FindDeckByName(name)
	if err != nil {
		return err
	}
	if existing != nil {
		resp.Conflicts = append(resp.Conflicts, Conflict{
			Type:    "deck",
			ID:      existing.ID,
			Message: "a deck named " + name + " already exists as " + existing.ID,
		})
		return nil
	}
	deck := domain.NewDeck(name, description, tx.Now())
	if err := tx.InsertDeck(&deck); err != nil {
		return err
	}
	resp.CreatedDecks = append(resp.CreatedDecks, deck)
	return nil
}

func (r *Reconciler) createCard(tx *storage.Tx, in *domain.Card, resp *PushResponse) error {
	front, err := domain.ParseContent(in.Front, "front_content")
	if err != nil {
		resp.Conflicts = append(resp.Conflicts, Conflict{Type: "card", Message: err.Error()})
		return nil
	}
	back, err := domain.ParseContent(in.Back, "back_content")
	if err != nil {
		resp.Conflicts = append(resp.Conflicts, Conflict{Type: "card", Message: err.Error()})
		return nil
	}
	tags, err := r.validate.NormalizeTags(in.Tags)
	if err != nil {
		resp.Conflicts = append(resp.Conflicts, Conflict{Type: "card", Message: err.Error()})
		return nil
	}
	deck, err := tx.GetDeck(in.DeckID)
	if err != nil {
		return err
	}
	if deck == nil || deck.IsDeleted {
		resp.Conflicts = append(resp.Conflicts, Conflict{
			Type:    "card",
			Message: "deck " + in.DeckID + " does not exist",
		})
		return nil
	}

	now := tx.Now()
	card := domain.NewCard(in.DeckID, front, back, tags, now)
	// Cards reviewed offline arrive with memory state already advanced;
	// accept it after checking the invariants.
	card.Stability = in.Stability
	card.Difficulty = in.Difficulty
	card.Lapses = in.Lapses
	if in.State != "" {
		card.State = in.State
	}
	card.DueAt = in.DueAt
	card.LastReviewAt = in.LastReviewAt
	if err := card.CheckInvariants(); err != nil {
		resp.Conflicts = append(resp.Conflicts, Conflict{Type: "card", Message: err.Error()})
		return nil
	}
	if err := tx.InsertCard(&card, ""); err != nil {
		return err
	}
	resp.CreatedCards = append(resp.CreatedCards, card)
	return nil
}

func (r *Reconciler) updateDeck(tx *storage.Tx, in *domain.Deck, resp *PushResponse) error {
	current, err := tx.GetDeck(in.ID)
	if err != nil {
		return err
	}
	if current == nil {
		resp.Conflicts = append(resp.Conflicts, Conflict{
			Type:    "deck",
			ID:      in.ID,
			Message: "deck not found on server",
		})
		return nil
	}
	if current.UpdatedAt.After(in.UpdatedAt) {
		client, server := in.UpdatedAt, current.UpdatedAt
		resp.Conflicts = append(resp.Conflicts, Conflict{
			Type:            "deck",
			ID:              in.ID,
			ClientTimestamp: &client,
			ServerTimestamp: &server,
		})
		return nil
	}

	name, err := r.validate.DeckName(in.Name)
	if err != nil {
		resp.Conflicts = append(resp.Conflicts, Conflict{Type: "deck", ID: in.ID, Message: err.Error()})
		return nil
	}
	if name != current.Name && !in.IsDeleted {
		clash, err := tx.FindDeckByName(name)
		if err != nil {
			return err
		}
		if clash != nil && clash.ID != current.ID {
			resp.Conflicts = append(resp.Conflicts, Conflict{
				Type:    "deck",
				ID:      clash.ID,
				Message: "a deck named " + name + " already exists as " + clash.ID,
			})
			return nil
		}
	}
	description, err := r.validate.DeckDescription(in.Description)
	if err != nil {
		resp.Conflicts = append(resp.Conflicts, Conflict{Type: "deck", ID: in.ID, Message: err.Error()})
		return nil
	}

	current.Name = name
	current.Description = description
	current.IsDeleted = in.IsDeleted
	current.DeletedAt = in.DeletedAt
	// updated_at is server-assigned, never taken from the client, so a
	// skewed client clock cannot win future conflicts.
	current.Touch(tx.Now())
	return tx.UpdateDeck(current)
}

func (r *Reconciler) updateCard(tx *storage.Tx, in *domain.Card, resp *PushResponse) error {
	current, err := tx.GetCard(in.ID)
	if err != nil {
		return err
	}
	if current == nil {
		resp.Conflicts = append(resp.Conflicts, Conflict{
			Type:    "card",
			ID:      in.ID,
			Message: "card not found on server",
		})
		return nil
	}
	if current.UpdatedAt.After(in.UpdatedAt) {
		client, server := in.UpdatedAt, current.UpdatedAt
		resp.Conflicts = append(resp.Conflicts, Conflict{
			Type:            "card",
			ID:              in.ID,
			ClientTimestamp: &client,
			ServerTimestamp: &server,
		})
		return nil
	}

	front, err := domain.ParseContent(in.Front, "front_content")
	if err != nil {
		resp.Conflicts = append(resp.Conflicts, Conflict{Type: "card", ID: in.ID, Message: err.Error()})
		return nil
	}
	back, err := domain.ParseContent(in.Back, "back_content")
	if err != nil {
		resp.Conflicts = append(resp.Conflicts, Conflict{Type: "card", ID: in.ID, Message: err.Error()})
		return nil
	}
	tags, err := r.validate.NormalizeTags(in.Tags)
	if err != nil {
		resp.Conflicts = append(resp.Conflicts, Conflict{Type: "card", ID: in.ID, Message: err.Error()})
		return nil
	}

	if in.DeckID != "" && in.DeckID != current.DeckID {
		deck, err := tx.GetDeck(in.DeckID)
		if err != nil {
			return err
		}
		if deck == nil || deck.IsDeleted {
			resp.Conflicts = append(resp.Conflicts, Conflict{
				Type:    "card",
				ID:      in.ID,
				Message: "deck " + in.DeckID + " does not exist",
			})
			return nil
		}
		current.DeckID = in.DeckID
	}

	current.Front = front
	current.Back = back
	current.Tags = tags
	current.Stability = in.Stability
	current.Difficulty = in.Difficulty
	current.Lapses = in.Lapses
	if in.State != "" {
		current.State = in.State
	}
	current.DueAt = in.DueAt
	current.LastReviewAt = in.LastReviewAt
	current.IsDeleted = in.IsDeleted
	current.DeletedAt = in.DeletedAt
	if err := current.CheckInvariants(); err != nil {
		resp.Conflicts = append(resp.Conflicts, Conflict{Type: "card", ID: in.ID, Message: err.Error()})
		return nil
	}
	current.Touch(tx.Now())
	return tx.UpdateCard(current)
}
