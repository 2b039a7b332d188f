package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

// stubClock lets tests control the store's notion of now.
type stubClock struct {
	now time.Time
}

func (c *stubClock) Now() time.Time { return c.now }

func (c *stubClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func openTestDB(t *testing.T) (*DB, *stubClock) {
	t.Helper()
	clock := &stubClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), clock)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, clock
}

func mustInsertDeck(t *testing.T, db *DB, name string) domain.Deck {
	t.Helper()
	var deck domain.Deck
	err := db.InTx(context.Background(), func(tx *Tx) error {
		deck = domain.NewDeck(name, "", tx.Now())
		return tx.InsertDeck(&deck)
	})
	if err != nil {
		t.Fatalf("insert deck %q: %v", name, err)
	}
	return deck
}

func mustInsertCard(t *testing.T, db *DB, deckID string) domain.Card {
	t.Helper()
	var card domain.Card
	err := db.InTx(context.Background(), func(tx *Tx) error {
		card = domain.NewCard(deckID, domain.TextContent("front"), domain.TextContent("back"), nil, tx.Now())
		return tx.InsertCard(&card, "")
	})
	if err != nil {
		t.Fatalf("insert card: %v", err)
	}
	return card
}

func TestDeckRoundTrip(t *testing.T) {
	db, clock := openTestDB(t)
	deck := mustInsertDeck(t, db, "Spanish")

	if deck.ID == "" {
		t.Fatal("expected store to assign an id")
	}
	var got *domain.Deck
	err := db.InTx(context.Background(), func(tx *Tx) error {
		var err error
		got, err = tx.GetDeck(deck.ID)
		return err
	})
	if err != nil {
		t.Fatalf("GetDeck: %v", err)
	}
	if got == nil {
		t.Fatal("deck not found after insert")
	}
	if got.Name != "Spanish" {
		t.Errorf("name = %q, want Spanish", got.Name)
	}
	if !got.CreatedAt.Equal(clock.now) || !got.UpdatedAt.Equal(clock.now) {
		t.Errorf("timestamps = %v / %v, want %v", got.CreatedAt, got.UpdatedAt, clock.now)
	}
	if got.IsDeleted || got.DeletedAt != nil {
		t.Error("new deck must not be deleted")
	}
}

func TestDeckNameUniqueAmongLiveOnly(t *testing.T) {
	db, clock := openTestDB(t)
	first := mustInsertDeck(t, db, "Spanish")

	err := db.InTx(context.Background(), func(tx *Tx) error {
		d := domain.NewDeck("Spanish", "", tx.Now())
		return tx.InsertDeck(&d)
	})
	if err == nil {
		t.Fatal("expected unique index violation for duplicate live name")
	}

	clock.Advance(time.Second)
	err = db.InTx(context.Background(), func(tx *Tx) error {
		d, err := tx.GetDeck(first.ID)
		if err != nil {
			return err
		}
		d.SoftDelete(tx.Now())
		return tx.UpdateDeck(d)
	})
	if err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	// The index covers live decks only, so the name is reusable now.
	mustInsertDeck(t, db, "Spanish")
}

func TestFindDeckByNameSkipsDeleted(t *testing.T) {
	db, clock := openTestDB(t)
	deck := mustInsertDeck(t, db, "History")

	clock.Advance(time.Second)
	err := db.InTx(context.Background(), func(tx *Tx) error {
		d, err := tx.GetDeck(deck.ID)
		if err != nil {
			return err
		}
		d.SoftDelete(tx.Now())
		return tx.UpdateDeck(d)
	})
	if err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	err = db.InTx(context.Background(), func(tx *Tx) error {
		found, err := tx.FindDeckByName("History")
		if err != nil {
			return err
		}
		if found != nil {
			t.Errorf("FindDeckByName returned deleted deck %s", found.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("FindDeckByName: %v", err)
	}
}

func TestUpdatedSinceIsStrict(t *testing.T) {
	db, clock := openTestDB(t)
	insertedAt := clock.now
	mustInsertDeck(t, db, "Spanish")

	err := db.InTx(context.Background(), func(tx *Tx) error {
		decks, err := tx.DecksUpdatedSince(insertedAt)
		if err != nil {
			return err
		}
		if len(decks) != 0 {
			t.Errorf("since == updated_at returned %d decks, want 0", len(decks))
		}
		decks, err = tx.DecksUpdatedSince(insertedAt.Add(-time.Microsecond))
		if err != nil {
			return err
		}
		if len(decks) != 1 {
			t.Errorf("since just before updated_at returned %d decks, want 1", len(decks))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("DecksUpdatedSince: %v", err)
	}
}

func TestCardsUpdatedSinceIncludesDeleted(t *testing.T) {
	db, clock := openTestDB(t)
	deck := mustInsertDeck(t, db, "Spanish")
	card := mustInsertCard(t, db, deck.ID)

	cursor := clock.now
	clock.Advance(time.Minute)
	err := db.InTx(context.Background(), func(tx *Tx) error {
		c, err := tx.GetCard(card.ID)
		if err != nil {
			return err
		}
		c.SoftDelete(tx.Now())
		return tx.UpdateCard(c)
	})
	if err != nil {
		t.Fatalf("soft delete card: %v", err)
	}

	err = db.InTx(context.Background(), func(tx *Tx) error {
		cards, err := tx.CardsUpdatedSince(cursor)
		if err != nil {
			return err
		}
		if len(cards) != 1 {
			t.Fatalf("got %d cards, want 1", len(cards))
		}
		if !cards[0].IsDeleted {
			t.Error("expected the tombstoned card in the changeset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("CardsUpdatedSince: %v", err)
	}
}

func TestNextDueCardOrdering(t *testing.T) {
	db, clock := openTestDB(t)
	deck := mustInsertDeck(t, db, "Spanish")

	reviewed := mustInsertCard(t, db, deck.ID)
	fresh := mustInsertCard(t, db, deck.ID)

	// Give the first card a due date in the past. The second card keeps a
	// null due date and must still win: never reviewed sorts first.
	due := clock.now.Add(-time.Hour)
	err := db.InTx(context.Background(), func(tx *Tx) error {
		c, err := tx.GetCard(reviewed.ID)
		if err != nil {
			return err
		}
		c.State = domain.StateReview
		c.DueAt = &due
		c.Touch(tx.Now())
		return tx.UpdateCard(c)
	})
	if err != nil {
		t.Fatalf("set due date: %v", err)
	}

	err = db.InTx(context.Background(), func(tx *Tx) error {
		next, err := tx.NextDueCard(deck.ID, tx.Now())
		if err != nil {
			return err
		}
		if next == nil {
			t.Fatal("expected a due card")
		}
		if next.ID != fresh.ID {
			t.Errorf("next = %s, want never-reviewed card %s", next.ID, fresh.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("NextDueCard: %v", err)
	}
}

func TestNextDueCardTieBreaksOnID(t *testing.T) {
	db, clock := openTestDB(t)
	deck := mustInsertDeck(t, db, "Spanish")
	a := mustInsertCard(t, db, deck.ID)
	b := mustInsertCard(t, db, deck.ID)

	due := clock.now.Add(-time.Hour)
	err := db.InTx(context.Background(), func(tx *Tx) error {
		for _, id := range []string{b.ID, a.ID} {
			c, err := tx.GetCard(id)
			if err != nil {
				return err
			}
			c.State = domain.StateReview
			c.DueAt = &due
			c.Touch(tx.Now())
			if err := tx.UpdateCard(c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("set due dates: %v", err)
	}

	err = db.InTx(context.Background(), func(tx *Tx) error {
		next, err := tx.NextDueCard(deck.ID, tx.Now())
		if err != nil {
			return err
		}
		// IDs ascend in insertion order, so the older card wins the tie.
		if next == nil || next.ID != a.ID {
			t.Errorf("next = %v, want %s", next, a.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("NextDueCard: %v", err)
	}
}

func TestNextDueCardSkipsFutureAndDeleted(t *testing.T) {
	db, clock := openTestDB(t)
	deck := mustInsertDeck(t, db, "Spanish")
	future := mustInsertCard(t, db, deck.ID)
	deleted := mustInsertCard(t, db, deck.ID)

	err := db.InTx(context.Background(), func(tx *Tx) error {
		c, err := tx.GetCard(future.ID)
		if err != nil {
			return err
		}
		c.State = domain.StateReview
		due := clock.now.Add(24 * time.Hour)
		c.DueAt = &due
		c.Touch(tx.Now())
		if err := tx.UpdateCard(c); err != nil {
			return err
		}
		d, err := tx.GetCard(deleted.ID)
		if err != nil {
			return err
		}
		d.SoftDelete(tx.Now())
		return tx.UpdateCard(d)
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	err = db.InTx(context.Background(), func(tx *Tx) error {
		next, err := tx.NextDueCard(deck.ID, tx.Now())
		if err != nil {
			return err
		}
		if next != nil {
			t.Errorf("expected no due card, got %s", next.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("NextDueCard: %v", err)
	}
}

func TestSoftDeleteCardsByDeck(t *testing.T) {
	db, clock := openTestDB(t)
	deck := mustInsertDeck(t, db, "Spanish")
	other := mustInsertDeck(t, db, "History")
	c1 := mustInsertCard(t, db, deck.ID)
	mustInsertCard(t, db, deck.ID)
	kept := mustInsertCard(t, db, other.ID)

	clock.Advance(time.Minute)
	deleteTime := clock.now
	err := db.InTx(context.Background(), func(tx *Tx) error {
		n, err := tx.SoftDeleteCardsByDeck(deck.ID, tx.Now())
		if err != nil {
			return err
		}
		if n != 2 {
			t.Errorf("affected %d cards, want 2", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("SoftDeleteCardsByDeck: %v", err)
	}

	err = db.InTx(context.Background(), func(tx *Tx) error {
		c, err := tx.GetCard(c1.ID)
		if err != nil {
			return err
		}
		if !c.IsDeleted || !c.UpdatedAt.Equal(deleteTime) {
			t.Errorf("cascaded card: deleted=%v updated_at=%v, want deleted at %v", c.IsDeleted, c.UpdatedAt, deleteTime)
		}
		k, err := tx.GetCard(kept.ID)
		if err != nil {
			return err
		}
		if k.IsDeleted {
			t.Error("card in another deck was deleted")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestCardTagsRoundTrip(t *testing.T) {
	db, _ := openTestDB(t)
	deck := mustInsertDeck(t, db, "Spanish")

	var card domain.Card
	err := db.InTx(context.Background(), func(tx *Tx) error {
		card = domain.NewCard(deck.ID, domain.TextContent("hola"), domain.TextContent("hello"), []string{"greetings", "a1"}, tx.Now())
		return tx.InsertCard(&card, "")
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	err = db.InTx(context.Background(), func(tx *Tx) error {
		got, err := tx.GetCard(card.ID)
		if err != nil {
			return err
		}
		if len(got.Tags) != 2 || got.Tags[0] != "greetings" || got.Tags[1] != "a1" {
			t.Errorf("tags = %v, want [greetings a1]", got.Tags)
		}
		if got.State != domain.StateNew || got.DueAt != nil {
			t.Errorf("new card state = %s due = %v", got.State, got.DueAt)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
}

func TestReviewLogRoundTrip(t *testing.T) {
	db, clock := openTestDB(t)
	deck := mustInsertDeck(t, db, "Spanish")
	card := mustInsertCard(t, db, deck.ID)

	elapsed := 3200
	due := clock.now.Add(48 * time.Hour)
	entry := domain.ReviewLogEntry{
		CardID:     card.ID,
		Rating:     domain.Good,
		ReviewedAt: clock.now,
		Before:     domain.MemorySnapshot{State: domain.StateNew},
		After: domain.MemorySnapshot{
			Stability:  2.3,
			Difficulty: 5.1,
			State:      domain.StateLearning,
			DueAt:      &due,
		},
		ElapsedMs: &elapsed,
	}
	err := db.InTx(context.Background(), func(tx *Tx) error {
		return tx.InsertReviewLog(&entry)
	})
	if err != nil {
		t.Fatalf("InsertReviewLog: %v", err)
	}

	err = db.InTx(context.Background(), func(tx *Tx) error {
		entries, err := tx.ReviewLogByCard(card.ID)
		if err != nil {
			return err
		}
		if len(entries) != 1 {
			t.Fatalf("got %d entries, want 1", len(entries))
		}
		got := entries[0]
		if got.Rating != domain.Good {
			t.Errorf("rating = %d", got.Rating)
		}
		if got.Before.State != domain.StateNew || got.Before.DueAt != nil {
			t.Errorf("before snapshot = %+v", got.Before)
		}
		if got.After.State != domain.StateLearning || got.After.DueAt == nil || !got.After.DueAt.Equal(due) {
			t.Errorf("after snapshot = %+v", got.After)
		}
		if got.ElapsedMs == nil || *got.ElapsedMs != elapsed {
			t.Errorf("elapsed = %v, want %d", got.ElapsedMs, elapsed)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReviewLogByCard: %v", err)
	}
}

func TestIDsAscendOverTime(t *testing.T) {
	db, clock := openTestDB(t)
	first := db.NewID()
	clock.Advance(time.Second)
	second := db.NewID()
	if !(first < second) {
		t.Errorf("ids not ascending: %s then %s", first, second)
	}
}
