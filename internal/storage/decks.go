package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

const deckColumns = "id, name, description, created_at, updated_at, is_deleted, deleted_at"

// InsertDeck persists a new deck, assigning its id.
func (t *Tx) InsertDeck(d *domain.Deck) error {
	if d.ID == "" {
		d.ID = t.NewID()
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO decks (id, name, description, created_at, updated_at, is_deleted, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.Name, d.Description, micros(d.CreatedAt), micros(d.UpdatedAt), d.IsDeleted, microsPtr(d.DeletedAt))
	if err != nil {
		return fmt.Errorf("failed to insert deck %s: %w", d.ID, err)
	}
	return nil
}

// GetDeck retrieves a deck by id, including soft-deleted ones.
// Returns nil when the deck does not exist.
func (t *Tx) GetDeck(id string) (*domain.Deck, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+deckColumns+` FROM decks WHERE id = ?`, id)
	d, err := scanDeck(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get deck %s: %w", id, err)
	}
	return d, nil
}

// FindDeckByName retrieves the live (non-deleted) deck with the given name,
// or nil when none exists.
func (t *Tx) FindDeckByName(name string) (*domain.Deck, error) {
	row := t.tx.QueryRowContext(t.ctx, `
		SELECT `+deckColumns+` FROM decks WHERE name = ? AND is_deleted = 0
	`, name)
	d, err := scanDeck(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find deck by name %q: %w", name, err)
	}
	return d, nil
}

// ListDecks returns all decks, optionally including soft-deleted ones,
// ordered by id.
func (t *Tx) ListDecks(includeDeleted bool) ([]domain.Deck, error) {
	query := `SELECT ` + deckColumns + ` FROM decks`
	if !includeDeleted {
		query += ` WHERE is_deleted = 0`
	}
	query += ` ORDER BY id`

	rows, err := t.tx.QueryContext(t.ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	defer rows.Close()
	return collectDecks(rows)
}

// DecksUpdatedSince returns decks with updated_at strictly after since,
// soft-deleted ones included, ordered by id.
func (t *Tx) DecksUpdatedSince(since time.Time) ([]domain.Deck, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT `+deckColumns+` FROM decks WHERE updated_at > ? ORDER BY id
	`, micros(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query decks updated since %s: %w", since, err)
	}
	defer rows.Close()
	return collectDecks(rows)
}

// UpdateDeck writes all mutable deck fields.
func (t *Tx) UpdateDeck(d *domain.Deck) error {
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE decks
		SET name = ?, description = ?, updated_at = ?, is_deleted = ?, deleted_at = ?
		WHERE id = ?
	`, d.Name, d.Description, micros(d.UpdatedAt), d.IsDeleted, microsPtr(d.DeletedAt), d.ID)
	if err != nil {
		return fmt.Errorf("failed to update deck %s: %w", d.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update deck %s: %w", d.ID, err)
	}
	if n == 0 {
		return &domain.NotFoundError{Entity: "deck", ID: d.ID}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeck(row rowScanner) (*domain.Deck, error) {
	var d domain.Deck
	var createdAt, updatedAt int64
	var deletedAt sql.NullInt64
	if err := row.Scan(&d.ID, &d.Name, &d.Description, &createdAt, &updatedAt, &d.IsDeleted, &deletedAt); err != nil {
		return nil, err
	}
	d.CreatedAt = fromMicros(createdAt)
	d.UpdatedAt = fromMicros(updatedAt)
	d.DeletedAt = fromMicrosNull(deletedAt)
	return &d, nil
}

func collectDecks(rows *sql.Rows) ([]domain.Deck, error) {
	var decks []domain.Deck
	for rows.Next() {
		d, err := scanDeck(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		decks = append(decks, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading deck rows: %w", err)
	}
	return decks, nil
}
