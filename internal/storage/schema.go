package storage

// Timestamps are stored as Unix microseconds (INTEGER) so the sync
// cursor's strict updated_at comparisons are exact.
const schema = `
CREATE TABLE IF NOT EXISTS decks (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL,
    is_deleted  INTEGER NOT NULL DEFAULT 0,
    deleted_at  INTEGER
);
-- Name uniqueness applies to live decks only; a deleted deck's name can be reused.
CREATE UNIQUE INDEX IF NOT EXISTS idx_decks_name_live ON decks(name) WHERE is_deleted = 0;
CREATE INDEX IF NOT EXISTS idx_decks_updated ON decks(updated_at);

CREATE TABLE IF NOT EXISTS cards (
    id             TEXT PRIMARY KEY,
    deck_id        TEXT NOT NULL REFERENCES decks(id),
    front_content  TEXT NOT NULL,
    back_content   TEXT NOT NULL,
    tags           TEXT,
    stability      REAL NOT NULL DEFAULT 0,
    difficulty     REAL NOT NULL DEFAULT 0,
    lapses         INTEGER NOT NULL DEFAULT 0,
    state          TEXT NOT NULL DEFAULT 'new',
    due_at         INTEGER,
    last_review_at INTEGER,
    source_hash    TEXT,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL,
    is_deleted     INTEGER NOT NULL DEFAULT 0,
    deleted_at     INTEGER
);
CREATE INDEX IF NOT EXISTS idx_cards_deck ON cards(deck_id);
CREATE INDEX IF NOT EXISTS idx_cards_due ON cards(due_at);
CREATE INDEX IF NOT EXISTS idx_cards_updated ON cards(updated_at);
CREATE INDEX IF NOT EXISTS idx_cards_source ON cards(deck_id, source_hash);

CREATE TABLE IF NOT EXISTS review_log (
    id              TEXT PRIMARY KEY,
    card_id         TEXT NOT NULL REFERENCES cards(id),
    rating          INTEGER NOT NULL,
    reviewed_at     INTEGER NOT NULL,
    prev_stability  REAL NOT NULL,
    prev_difficulty REAL NOT NULL,
    prev_lapses     INTEGER NOT NULL,
    prev_state      TEXT NOT NULL,
    prev_due_at     INTEGER,
    new_stability   REAL NOT NULL,
    new_difficulty  REAL NOT NULL,
    new_lapses      INTEGER NOT NULL,
    new_state       TEXT NOT NULL,
    new_due_at      INTEGER,
    elapsed_ms      INTEGER
);
CREATE INDEX IF NOT EXISTS idx_review_log_card ON review_log(card_id, reviewed_at);
`
