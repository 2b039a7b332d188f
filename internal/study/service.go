// Package study is the service layer tying the scheduler to the store. Every
// operation runs inside one storage transaction and re-reads current state
// before mutating, so concurrent requests never act on stale data.
package study

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/fsrs"
	"github.com/conorfennell/recall/internal/storage"
)

// Service exposes the deck, card, and review operations.
type Service struct {
	db        *storage.DB
	scheduler *fsrs.Scheduler
	validate  *domain.Validator
}

// New wires a Service. All dependencies are injected; the service holds no
// other state.
func New(db *storage.DB, scheduler *fsrs.Scheduler, validate *domain.Validator) *Service {
	return &Service{db: db, scheduler: scheduler, validate: validate}
}

// CreateDeck validates and persists a new deck. A live deck with the same
// name yields a ConflictError.
func (s *Service) CreateDeck(ctx context.Context, name, description string) (*domain.Deck, error) {
	name, err := s.validate.DeckName(name)
	if err != nil {
		return nil, err
	}
	description, err = s.validate.DeckDescription(description)
	if err != nil {
		return nil, err
	}

	var deck domain.Deck
	err = s.db.InTx(ctx, func(tx *storage.Tx) error {
		existing, err := tx.FindDeckByName(name)
		if err != nil {
			return err
		}
		if existing != nil {
			return &domain.ConflictError{Entity: "deck", ID: existing.ID, Msg: fmt.Sprintf("name %q already in use", name)}
		}
		deck = domain.NewDeck(name, description, tx.Now())
		return tx.InsertDeck(&deck)
	})
	if err != nil {
		return nil, err
	}
	return &deck, nil
}

// GetDeck returns a live deck or NotFoundError.
func (s *Service) GetDeck(ctx context.Context, id string) (*domain.Deck, error) {
	var deck *domain.Deck
	err := s.db.InTx(ctx, func(tx *storage.Tx) error {
		d, err := tx.GetDeck(id)
		if err != nil {
			return err
		}
		if d == nil || d.IsDeleted {
			return &domain.NotFoundError{Entity: "deck", ID: id}
		}
		deck = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deck, nil
}

// ListDecks returns all live decks.
func (s *Service) ListDecks(ctx context.Context) ([]domain.Deck, error) {
	var decks []domain.Deck
	err := s.db.InTx(ctx, func(tx *storage.Tx) error {
		var err error
		decks, err = tx.ListDecks(false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return decks, nil
}

// DeckUpdate carries the optional fields of a deck update; nil means leave
// unchanged.
type DeckUpdate struct {
	Name        *string
	Description *string
}

// UpdateDeck applies a partial update to a live deck.
func (s *Service) UpdateDeck(ctx context.Context, id string, upd DeckUpdate) (*domain.Deck, error) {
	var deck *domain.Deck
	err := s.db.InTx(ctx, func(tx *storage.Tx) error {
		d, err := tx.GetDeck(id)
		if err != nil {
			return err
		}
		if d == nil || d.IsDeleted {
			return &domain.NotFoundError{Entity: "deck", ID: id}
		}
		if upd.Name != nil {
			name, err := s.validate.DeckName(*upd.Name)
			if err != nil {
				return err
			}
			if name != d.Name {
				existing, err := tx.FindDeckByName(name)
				if err != nil {
					return err
				}
				if existing != nil && existing.ID != d.ID {
					return &domain.ConflictError{Entity: "deck", ID: existing.ID, Msg: fmt.Sprintf("name %q already in use", name)}
				}
			}
			d.Name = name
		}
		if upd.Description != nil {
			desc, err := s.validate.DeckDescription(*upd.Description)
			if err != nil {
				return err
			}
			d.Description = desc
		}
		d.Touch(tx.Now())
		if err := tx.UpdateDeck(d); err != nil {
			return err
		}
		deck = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deck, nil
}

// DeleteDeck soft-deletes the deck and cascades to its cards. Deleting an
// already deleted deck is a no-op.
func (s *Service) DeleteDeck(ctx context.Context, id string) (*domain.Deck, error) {
	var deck *domain.Deck
	err := s.db.InTx(ctx, func(tx *storage.Tx) error {
		d, err := tx.GetDeck(id)
		if err != nil {
			return err
		}
		if d == nil {
			return &domain.NotFoundError{Entity: "deck", ID: id}
		}
		if d.IsDeleted {
			deck = d
			return nil
		}
		now := tx.Now()
		d.SoftDelete(now)
		if err := tx.UpdateDeck(d); err != nil {
			return err
		}
		if _, err := tx.SoftDeleteCardsByDeck(d.ID, now); err != nil {
			return err
		}
		deck = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deck, nil
}

// CreateCard validates content and tags and persists a new card in state
// "new" with a null due date.
func (s *Service) CreateCard(ctx context.Context, deckID string, front, back json.RawMessage, tags []string) (*domain.Card, error) {
	front, err := domain.ParseContent(front, "front_content")
	if err != nil {
		return nil, err
	}
	back, err = domain.ParseContent(back, "back_content")
	if err != nil {
		return nil, err
	}
	tags, err = s.validate.NormalizeTags(tags)
	if err != nil {
		return nil, err
	}

	var card domain.Card
	err = s.db.InTx(ctx, func(tx *storage.Tx) error {
		deck, err := tx.GetDeck(deckID)
		if err != nil {
			return err
		}
		if deck == nil || deck.IsDeleted {
			return &domain.NotFoundError{Entity: "deck", ID: deckID}
		}
		card = domain.NewCard(deckID, front, back, tags, tx.Now())
		return tx.InsertCard(&card, "")
	})
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// GetCard returns a live card or NotFoundError.
func (s *Service) GetCard(ctx context.Context, id string) (*domain.Card, error) {
	var card *domain.Card
	err := s.db.InTx(ctx, func(tx *storage.Tx) error {
		c, err := tx.GetCard(id)
		if err != nil {
			return err
		}
		if c == nil || c.IsDeleted {
			return &domain.NotFoundError{Entity: "card", ID: id}
		}
		card = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// ListCards returns live cards, optionally restricted to one deck.
func (s *Service) ListCards(ctx context.Context, deckID string) ([]domain.Card, error) {
	var cards []domain.Card
	err := s.db.InTx(ctx, func(tx *storage.Tx) error {
		var err error
		cards, err = tx.ListCards(deckID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cards, nil
}

// CardUpdate carries the optional fields of a card update; nil means leave
// unchanged.
type CardUpdate struct {
	Front json.RawMessage
	Back  json.RawMessage
	Tags  *[]string
}

// UpdateCard applies a partial content update to a live card. Memory-state
// fields are owned by the scheduler and are not updatable here.
func (s *Service) UpdateCard(ctx context.Context, id string, upd CardUpdate) (*domain.Card, error) {
	var card *domain.Card
	err := s.db.InTx(ctx, func(tx *storage.Tx) error {
		c, err := tx.GetCard(id)
		if err != nil {
			return err
		}
		if c == nil || c.IsDeleted {
			return &domain.NotFoundError{Entity: "card", ID: id}
		}
		if upd.Front != nil {
			front, err := domain.ParseContent(upd.Front, "front_content")
			if err != nil {
				return err
			}
			c.Front = front
		}
		if upd.Back != nil {
			back, err := domain.ParseContent(upd.Back, "back_content")
			if err != nil {
				return err
			}
			c.Back = back
		}
		if upd.Tags != nil {
			tags, err := s.validate.NormalizeTags(*upd.Tags)
			if err != nil {
				return err
			}
			c.Tags = tags
		}
		c.Touch(tx.Now())
		if err := tx.UpdateCard(c); err != nil {
			return err
		}
		card = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// DeleteCard soft-deletes the card. Idempotent.
func (s *Service) DeleteCard(ctx context.Context, id string) (*domain.Card, error) {
	var card *domain.Card
	err := s.db.InTx(ctx, func(tx *storage.Tx) error {
		c, err := tx.GetCard(id)
		if err != nil {
			return err
		}
		if c == nil {
			return &domain.NotFoundError{Entity: "card", ID: id}
		}
		if !c.IsDeleted {
			c.SoftDelete(tx.Now())
			if err := tx.UpdateCard(c); err != nil {
				return err
			}
		}
		card = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// ReviewCard applies one review: the card mutation and the review log entry
// commit together or not at all.
func (s *Service) ReviewCard(ctx context.Context, cardID string, rating domain.Rating, elapsedMs *int) (*domain.Card, error) {
	if !rating.IsValid() {
		return nil, &domain.ValidationError{Field: "rating", Msg: fmt.Sprintf("must be 1..4, got %d", int(rating))}
	}

	var card domain.Card
	err := s.db.InTx(ctx, func(tx *storage.Tx) error {
		c, err := tx.GetCard(cardID)
		if err != nil {
			return err
		}
		if c == nil {
			return &domain.NotFoundError{Entity: "card", ID: cardID}
		}
		reviewed, entry, err := s.scheduler.ReviewCard(*c, rating, tx.Now(), elapsedMs)
		if err != nil {
			return err
		}
		if err := tx.UpdateCard(&reviewed); err != nil {
			return err
		}
		if err := tx.InsertReviewLog(&entry); err != nil {
			return err
		}
		card = reviewed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// NextDueCard returns the next card due for review, or nil when none is
// due. deckID optionally filters to one deck.
func (s *Service) NextDueCard(ctx context.Context, deckID string) (*domain.Card, error) {
	var card *domain.Card
	err := s.db.InTx(ctx, func(tx *storage.Tx) error {
		var err error
		card, err = tx.NextDueCard(deckID, tx.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// ListReviews returns the card's review history in chronological order.
func (s *Service) ListReviews(ctx context.Context, cardID string) ([]domain.ReviewLogEntry, error) {
	var entries []domain.ReviewLogEntry
	err := s.db.InTx(ctx, func(tx *storage.Tx) error {
		c, err := tx.GetCard(cardID)
		if err != nil {
			return err
		}
		if c == nil {
			return &domain.NotFoundError{Entity: "card", ID: cardID}
		}
		entries, err = tx.ReviewLogByCard(cardID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
