package domain

import "time"

// MemorySnapshot captures the scheduler-relevant fields of a card at one
// instant. Review log entries carry one snapshot from before and one from
// after the review.
type MemorySnapshot struct {
	Stability  float64    `json:"stability"`
	Difficulty float64    `json:"difficulty"`
	Lapses     int        `json:"lapses"`
	State      State      `json:"scheduling_state"`
	DueAt      *time.Time `json:"due_at,omitempty"`
}

// Snapshot extracts the card's current memory state.
func (c *Card) Snapshot() MemorySnapshot {
	return MemorySnapshot{
		Stability:  c.Stability,
		Difficulty: c.Difficulty,
		Lapses:     c.Lapses,
		State:      c.State,
		DueAt:      c.DueAt,
	}
}

// ReviewLogEntry is the immutable audit record of one scheduling decision.
// Entries are created exactly once per review and never mutated or deleted.
type ReviewLogEntry struct {
	ID         string         `json:"id"`
	CardID     string         `json:"card_id"`
	Rating     Rating         `json:"rating"`
	ReviewedAt time.Time      `json:"reviewed_at"`
	Before     MemorySnapshot `json:"before"`
	After      MemorySnapshot `json:"after"`
	ElapsedMs  *int           `json:"elapsed_ms,omitempty"`
}
