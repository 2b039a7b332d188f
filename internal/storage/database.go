package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite" // registers the sqlite driver
)

// Clock abstracts time retrieval so scheduling and sync-cursor logic are
// deterministic in tests. The store truncates to microseconds to match the
// persisted timestamp precision.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// DB wraps the sqlite connection and generates entity ids. IDs are ULIDs:
// lexicographically ordered by creation time, which makes "ascending id"
// tie-breaks stable.
type DB struct {
	conn *sql.DB

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	clock   Clock
}

// Open creates a new database connection at dsn and applies the schema.
func Open(dsn string, clock Clock) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &DB{
		conn:    conn,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		clock:   clock,
	}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Now returns the store's current time. Sync stamps server_now from this
// same clock that assigns updated_at, so the pull cursor never skips a write.
func (db *DB) Now() time.Time {
	return db.clock.Now()
}

// NewID generates a store-assigned entity id.
func (db *DB) NewID() string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(db.clock.Now()), db.entropy).String()
}

// Tx bundles entity operations executed inside one transaction.
type Tx struct {
	tx  *sql.Tx
	ctx context.Context
	db  *DB
}

// NewID generates an entity id inside the transaction.
func (t *Tx) NewID() string { return t.db.NewID() }

// Now returns the store clock's current time.
func (t *Tx) Now() time.Time { return t.db.clock.Now() }

// InTx runs fn inside a single transaction. A non-nil error from fn rolls
// everything back; otherwise the transaction commits. Sqlite serializes
// writers, which gives the read-committed isolation the last-write-wins
// check depends on.
func (db *DB) InTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&Tx{tx: tx, ctx: ctx, db: db}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// micros converts a time to the persisted representation.
func micros(t time.Time) int64 {
	return t.UnixMicro()
}

// microsPtr converts a nullable time.
func microsPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMicro()
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func fromMicrosNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMicros(v.Int64)
	return &t
}
