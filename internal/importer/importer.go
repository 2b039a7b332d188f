// Package importer populates a deck from Q:/A:/C: markdown files found in
// a local directory or a git repository. Imported cards start unreviewed;
// a content hash keeps re-imports from duplicating cards.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/storage"
)

// Importer loads markdown sources into the store.
type Importer struct {
	db       *storage.DB
	validate *domain.Validator
	log      *slog.Logger
	reposDir string
}

// New wires an Importer. reposDir is where git sources are checked out.
func New(db *storage.DB, validate *domain.Validator, log *slog.Logger, reposDir string) *Importer {
	if log == nil {
		log = slog.Default()
	}
	if reposDir == "" {
		reposDir = "repos"
	}
	return &Importer{db: db, validate: validate, log: log, reposDir: reposDir}
}

// Summary reports the outcome of one import run.
type Summary struct {
	DeckID       string
	CardsCreated int
	Duplicates   int
	ParseErrors  []error
}

// Run imports every markdown file under source into the named deck,
// creating the deck if it does not exist. Git sources are fetched first.
func (im *Importer) Run(ctx context.Context, source, deckName string) (*Summary, error) {
	deckName, err := im.validate.DeckName(deckName)
	if err != nil {
		return nil, err
	}

	dir := source
	if IsGitSource(source) {
		dir, err = fetchGitSource(im.log, im.reposDir, source)
		if err != nil {
			return nil, err
		}
	}

	drafts, parseErrs, err := collectDrafts(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	summary := &Summary{ParseErrors: parseErrs}
	err = im.db.InTx(ctx, func(tx *storage.Tx) error {
		deck, err := tx.FindDeckByName(deckName)
		if err != nil {
			return err
		}
		if deck == nil {
			d := domain.NewDeck(deckName, "", tx.Now())
			if err := tx.InsertDeck(&d); err != nil {
				return err
			}
			deck = &d
		}
		summary.DeckID = deck.ID

		for _, draft := range drafts {
			hash := contentHash(draft)
			exists, err := tx.CardExistsBySourceHash(deck.ID, hash)
			if err != nil {
				return err
			}
			if exists {
				summary.Duplicates++
				continue
			}
			card := domain.NewCard(deck.ID, domain.TextContent(draft.Front), backContent(draft), nil, tx.Now())
			if err := tx.InsertCard(&card, hash); err != nil {
				return err
			}
			summary.CardsCreated++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	im.log.Info("import complete",
		"source", source,
		"deck", deckName,
		"created", summary.CardsCreated,
		"duplicates", summary.Duplicates,
		"parse_errors", len(summary.ParseErrors),
	)
	return summary, nil
}

// backContent renders the answer, with the context (when present) as a
// second text block.
func backContent(d Draft) json.RawMessage {
	if d.Context == "" {
		return domain.TextContent(d.Back)
	}
	blob, _ := json.Marshal([]domain.ContentBlock{
		{Type: domain.BlockText, Text: d.Back},
		{Type: domain.BlockText, Text: d.Context},
	})
	return blob
}

func collectDrafts(dir string) ([]Draft, []error, error) {
	var drafts []Draft
	var parseErrs []error
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		fileDrafts, parseErr := ParseFile(path)
		if parseErr != nil {
			parseErrs = append(parseErrs, fmt.Errorf("parsing %s: %w", path, parseErr))
		}
		drafts = append(drafts, fileDrafts...)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return drafts, parseErrs, nil
}
