package domain

import "time"

// Deck is a named collection of cards. Names are unique among non-deleted
// decks.
type Deck struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	IsDeleted   bool       `json:"is_deleted"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// NewDeck builds a deck. The store assigns the ID.
func NewDeck(name, description string, now time.Time) Deck {
	return Deck{
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// SoftDelete marks the deck deleted. Idempotent, same contract as
// Card.SoftDelete. Cascading the delete to the deck's cards is the
// service layer's job.
func (d *Deck) SoftDelete(now time.Time) {
	if d.IsDeleted {
		return
	}
	d.IsDeleted = true
	t := now
	d.DeletedAt = &t
	d.UpdatedAt = now
}

// Touch bumps updated_at without other changes.
func (d *Deck) Touch(now time.Time) {
	d.UpdatedAt = now
}
