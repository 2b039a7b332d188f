package storage

import (
	"database/sql"
	"fmt"

	"github.com/conorfennell/recall/internal/domain"
)

// InsertReviewLog appends one review log entry, assigning its id. Entries
// are never updated or deleted; pruning is an external maintenance concern.
func (t *Tx) InsertReviewLog(e *domain.ReviewLogEntry) error {
	if e.ID == "" {
		e.ID = t.NewID()
	}
	var elapsed any
	if e.ElapsedMs != nil {
		elapsed = *e.ElapsedMs
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO review_log (id, card_id, rating, reviewed_at,
			prev_stability, prev_difficulty, prev_lapses, prev_state, prev_due_at,
			new_stability, new_difficulty, new_lapses, new_state, new_due_at,
			elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.CardID, int(e.Rating), micros(e.ReviewedAt),
		e.Before.Stability, e.Before.Difficulty, e.Before.Lapses, string(e.Before.State), microsPtr(e.Before.DueAt),
		e.After.Stability, e.After.Difficulty, e.After.Lapses, string(e.After.State), microsPtr(e.After.DueAt),
		elapsed)
	if err != nil {
		return fmt.Errorf("failed to insert review log for card %s: %w", e.CardID, err)
	}
	return nil
}

// ReviewLogByCard returns the card's review history in chronological order.
func (t *Tx) ReviewLogByCard(cardID string) ([]domain.ReviewLogEntry, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT id, card_id, rating, reviewed_at,
			prev_stability, prev_difficulty, prev_lapses, prev_state, prev_due_at,
			new_stability, new_difficulty, new_lapses, new_state, new_due_at,
			elapsed_ms
		FROM review_log WHERE card_id = ? ORDER BY reviewed_at, id
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to query review log for card %s: %w", cardID, err)
	}
	defer rows.Close()

	var entries []domain.ReviewLogEntry
	for rows.Next() {
		var e domain.ReviewLogEntry
		var rating int
		var reviewedAt int64
		var prevState, newState string
		var prevDue, newDue, elapsed sql.NullInt64
		if err := rows.Scan(&e.ID, &e.CardID, &rating, &reviewedAt,
			&e.Before.Stability, &e.Before.Difficulty, &e.Before.Lapses, &prevState, &prevDue,
			&e.After.Stability, &e.After.Difficulty, &e.After.Lapses, &newState, &newDue,
			&elapsed); err != nil {
			return nil, fmt.Errorf("failed to scan review log row: %w", err)
		}
		e.Rating = domain.Rating(rating)
		e.ReviewedAt = fromMicros(reviewedAt)
		e.Before.State = domain.State(prevState)
		e.Before.DueAt = fromMicrosNull(prevDue)
		e.After.State = domain.State(newState)
		e.After.DueAt = fromMicrosNull(newDue)
		if elapsed.Valid {
			ms := int(elapsed.Int64)
			e.ElapsedMs = &ms
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading review log rows: %w", err)
	}
	return entries, nil
}
