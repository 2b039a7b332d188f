package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

const cardColumns = `id, deck_id, front_content, back_content, tags,
	stability, difficulty, lapses, state, due_at, last_review_at,
	created_at, updated_at, is_deleted, deleted_at`

// InsertCard persists a new card, assigning its id. sourceHash is non-empty
// only for imported cards and drives import deduplication.
func (t *Tx) InsertCard(c *domain.Card, sourceHash string) error {
	if c.ID == "" {
		c.ID = t.NewID()
	}
	tags, err := encodeTags(c.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags for card %s: %w", c.ID, err)
	}
	var hash any
	if sourceHash != "" {
		hash = sourceHash
	}
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO cards (id, deck_id, front_content, back_content, tags,
			stability, difficulty, lapses, state, due_at, last_review_at,
			source_hash, created_at, updated_at, is_deleted, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.DeckID, string(c.Front), string(c.Back), tags,
		c.Stability, c.Difficulty, c.Lapses, string(c.State),
		microsPtr(c.DueAt), microsPtr(c.LastReviewAt), hash,
		micros(c.CreatedAt), micros(c.UpdatedAt), c.IsDeleted, microsPtr(c.DeletedAt))
	if err != nil {
		return fmt.Errorf("failed to insert card %s: %w", c.ID, err)
	}
	return nil
}

// GetCard retrieves a card by id, including soft-deleted ones.
// Returns nil when the card does not exist.
func (t *Tx) GetCard(id string) (*domain.Card, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get card %s: %w", id, err)
	}
	return c, nil
}

// ListCards returns cards ordered by id. deckID filters to one deck when
// non-empty.
func (t *Tx) ListCards(deckID string, includeDeleted bool) ([]domain.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE 1=1`
	var args []any
	if deckID != "" {
		query += ` AND deck_id = ?`
		args = append(args, deckID)
	}
	if !includeDeleted {
		query += ` AND is_deleted = 0`
	}
	query += ` ORDER BY id`

	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()
	return collectCards(rows)
}

// CardsUpdatedSince returns cards with updated_at strictly after since,
// soft-deleted ones included, ordered by id.
func (t *Tx) CardsUpdatedSince(since time.Time) ([]domain.Card, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT `+cardColumns+` FROM cards WHERE updated_at > ? ORDER BY id
	`, micros(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query cards updated since %s: %w", since, err)
	}
	defer rows.Close()
	return collectCards(rows)
}

// NextDueCard returns the live card with the earliest due date among cards
// due at or before now, or nil when none is due. A null due date means
// never reviewed and sorts first. Ties break on ascending id.
func (t *Tx) NextDueCard(deckID string, now time.Time) (*domain.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards
		WHERE is_deleted = 0 AND (due_at IS NULL OR due_at <= ?)`
	args := []any{micros(now)}
	if deckID != "" {
		query += ` AND deck_id = ?`
		args = append(args, deckID)
	}
	query += ` ORDER BY due_at ASC, id ASC LIMIT 1`

	row := t.tx.QueryRowContext(t.ctx, query, args...)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find next due card: %w", err)
	}
	return c, nil
}

// UpdateCard writes all mutable card fields.
func (t *Tx) UpdateCard(c *domain.Card) error {
	tags, err := encodeTags(c.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags for card %s: %w", c.ID, err)
	}
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE cards
		SET deck_id = ?, front_content = ?, back_content = ?, tags = ?,
			stability = ?, difficulty = ?, lapses = ?, state = ?,
			due_at = ?, last_review_at = ?, updated_at = ?,
			is_deleted = ?, deleted_at = ?
		WHERE id = ?
	`, c.DeckID, string(c.Front), string(c.Back), tags,
		c.Stability, c.Difficulty, c.Lapses, string(c.State),
		microsPtr(c.DueAt), microsPtr(c.LastReviewAt), micros(c.UpdatedAt),
		c.IsDeleted, microsPtr(c.DeletedAt), c.ID)
	if err != nil {
		return fmt.Errorf("failed to update card %s: %w", c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update card %s: %w", c.ID, err)
	}
	if n == 0 {
		return &domain.NotFoundError{Entity: "card", ID: c.ID}
	}
	return nil
}

// SoftDeleteCardsByDeck marks every live card of the deck deleted, bumping
// updated_at so the deletions propagate through sync. Returns the number of
// cards affected.
func (t *Tx) SoftDeleteCardsByDeck(deckID string, now time.Time) (int64, error) {
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE cards SET is_deleted = 1, deleted_at = ?, updated_at = ?
		WHERE deck_id = ? AND is_deleted = 0
	`, micros(now), micros(now), deckID)
	if err != nil {
		return 0, fmt.Errorf("failed to soft-delete cards of deck %s: %w", deckID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to soft-delete cards of deck %s: %w", deckID, err)
	}
	return n, nil
}

// CardExistsBySourceHash reports whether the deck already holds an imported
// card with the given content hash.
func (t *Tx) CardExistsBySourceHash(deckID, hash string) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT 1 FROM cards WHERE deck_id = ? AND source_hash = ? AND is_deleted = 0
	`, deckID, hash).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check source hash for deck %s: %w", deckID, err)
	}
	return true, nil
}

func scanCard(row rowScanner) (*domain.Card, error) {
	var c domain.Card
	var front, back, state string
	var tags sql.NullString
	var dueAt, lastReview, deletedAt sql.NullInt64
	var createdAt, updatedAt int64
	if err := row.Scan(&c.ID, &c.DeckID, &front, &back, &tags,
		&c.Stability, &c.Difficulty, &c.Lapses, &state, &dueAt, &lastReview,
		&createdAt, &updatedAt, &c.IsDeleted, &deletedAt); err != nil {
		return nil, err
	}
	c.Front = json.RawMessage(front)
	c.Back = json.RawMessage(back)
	c.State = domain.State(state)
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &c.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags for card %s: %w", c.ID, err)
		}
	}
	c.DueAt = fromMicrosNull(dueAt)
	c.LastReviewAt = fromMicrosNull(lastReview)
	c.CreatedAt = fromMicros(createdAt)
	c.UpdatedAt = fromMicros(updatedAt)
	c.DeletedAt = fromMicrosNull(deletedAt)
	return &c, nil
}

func collectCards(rows *sql.Rows) ([]domain.Card, error) {
	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading card rows: %w", err)
	}
	return cards, nil
}

func encodeTags(tags []string) (any, error) {
	if tags == nil {
		return nil, nil
	}
	blob, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return string(blob), nil
}
