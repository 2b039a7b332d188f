package domain

import (
	"encoding/json"
	"math"
	"time"
)

// Card is the unit of study. Content payloads are opaque, validated JSON
// blobs (see ParseContent); the memory-state fields are owned by the
// scheduler.
type Card struct {
	ID     string          `json:"id"`
	DeckID string          `json:"deck_id"`
	Front  json.RawMessage `json:"front_content"`
	Back   json.RawMessage `json:"back_content"`
	Tags   []string        `json:"tags,omitempty"`

	Stability    float64    `json:"stability"`
	Difficulty   float64    `json:"difficulty"`
	Lapses       int        `json:"lapses"`
	State        State      `json:"scheduling_state"`
	DueAt        *time.Time `json:"due_at,omitempty"`
	LastReviewAt *time.Time `json:"last_review_at,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	IsDeleted bool       `json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// NewCard builds an unreviewed card. The store assigns the ID.
func NewCard(deckID string, front, back json.RawMessage, tags []string, now time.Time) Card {
	return Card{
		DeckID:    deckID,
		Front:     front,
		Back:      back,
		Tags:      tags,
		State:     StateNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SoftDelete marks the card deleted. Idempotent: deleting an already
// deleted card changes nothing, including updated_at.
func (c *Card) SoftDelete(now time.Time) {
	if c.IsDeleted {
		return
	}
	c.IsDeleted = true
	t := now
	c.DeletedAt = &t
	c.UpdatedAt = now
}

// Touch bumps updated_at without other changes. Sync uses it to record
// ownership of a field update.
func (c *Card) Touch(now time.Time) {
	c.UpdatedAt = now
}

// CheckInvariants verifies the memory-state bounds. It is called after
// every scheduler mutation and on sync ingest.
func (c *Card) CheckInvariants() error {
	if c.Stability < 0 || math.IsNaN(c.Stability) || math.IsInf(c.Stability, 0) {
		return &ValidationError{Field: "stability", Msg: "must be a finite value >= 0"}
	}
	if c.Difficulty < 0 || c.Difficulty > 10 || math.IsNaN(c.Difficulty) {
		return &ValidationError{Field: "difficulty", Msg: "must be within [0, 10]"}
	}
	if c.Lapses < 0 {
		return &ValidationError{Field: "lapses", Msg: "must be >= 0"}
	}
	if !c.State.IsValid() {
		return &ValidationError{Field: "scheduling_state", Msg: "unknown state"}
	}
	if c.State != StateNew && c.DueAt == nil {
		return &ValidationError{Field: "due_at", Msg: "required once a card has been reviewed"}
	}
	return nil
}
