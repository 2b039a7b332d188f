package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// BlockType discriminates the content block variants.
type BlockType string

const (
	BlockText  BlockType = "text"
	BlockHTML  BlockType = "html"
	BlockImage BlockType = "image"
	BlockAudio BlockType = "audio"
	BlockCloze BlockType = "cloze_text"
)

// ContentBlock is one element of a card side. Which fields are required
// depends on Type:
//
//	text       -> Text
//	html       -> HTML
//	image      -> URL (Alt optional)
//	audio      -> URL
//	cloze_text -> Text containing at least one {{cN::...}} blank
type ContentBlock struct {
	Type BlockType `json:"type"`
	Text string    `json:"text,omitempty"`
	HTML string    `json:"html,omitempty"`
	URL  string    `json:"url,omitempty"`
	Alt  string    `json:"alt,omitempty"`
}

var clozeBlankRe = regexp.MustCompile(`\{\{c(\d+)::(.+?)\}\}`)

const maxBlockTextLen = 10000

// validate checks the per-variant required fields of a single block.
func (b ContentBlock) validate(field string) error {
	switch b.Type {
	case BlockText:
		if strings.TrimSpace(b.Text) == "" {
			return &ValidationError{Field: field, Msg: "text block requires non-empty text"}
		}
		if len(b.Text) > maxBlockTextLen {
			return &ValidationError{Field: field, Msg: fmt.Sprintf("text exceeds %d characters", maxBlockTextLen)}
		}
	case BlockHTML:
		if strings.TrimSpace(b.HTML) == "" {
			return &ValidationError{Field: field, Msg: "html block requires non-empty html"}
		}
		if len(b.HTML) > maxBlockTextLen {
			return &ValidationError{Field: field, Msg: fmt.Sprintf("html exceeds %d characters", maxBlockTextLen)}
		}
	case BlockImage, BlockAudio:
		if strings.TrimSpace(b.URL) == "" {
			return &ValidationError{Field: field, Msg: fmt.Sprintf("%s block requires a url", b.Type)}
		}
	case BlockCloze:
		if !clozeBlankRe.MatchString(b.Text) {
			return &ValidationError{Field: field, Msg: "cloze block requires at least one {{cN::...}} blank"}
		}
		if len(b.Text) > maxBlockTextLen {
			return &ValidationError{Field: field, Msg: fmt.Sprintf("cloze text exceeds %d characters", maxBlockTextLen)}
		}
	default:
		return &ValidationError{Field: field, Msg: fmt.Sprintf("unknown block type %q", b.Type)}
	}
	return nil
}

// ParseContent validates a card side payload and returns its canonical JSON
// form: an array of validated content blocks. Accepted inputs are an array of
// blocks, a single block object, or a bare string (treated as one text
// block). The rest of the system treats the returned blob as opaque.
func ParseContent(raw json.RawMessage, field string) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, &ValidationError{Field: field, Msg: "content is required"}
	}

	blocks, err := decodeBlocks(raw, field)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, &ValidationError{Field: field, Msg: "content must contain at least one block"}
	}

	for i, b := range blocks {
		if err := b.validate(field); err != nil {
			return nil, err
		}
		if b.Type == BlockCloze && len(blocks) > 1 {
			return nil, &ValidationError{Field: field, Msg: fmt.Sprintf("cloze block at index %d must be the only block", i)}
		}
	}

	canonical, err := json.Marshal(blocks)
	if err != nil {
		return nil, fmt.Errorf("re-encoding content for %s: %w", field, err)
	}
	return canonical, nil
}

func decodeBlocks(raw json.RawMessage, field string) ([]ContentBlock, error) {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case strings.HasPrefix(trimmed, "["):
		var blocks []ContentBlock
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return nil, &ValidationError{Field: field, Msg: "content must be an array of blocks"}
		}
		return blocks, nil
	case strings.HasPrefix(trimmed, "{"):
		var block ContentBlock
		if err := json.Unmarshal(raw, &block); err != nil {
			return nil, &ValidationError{Field: field, Msg: "content block is malformed"}
		}
		return []ContentBlock{block}, nil
	default:
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, &ValidationError{Field: field, Msg: "content must be a block array, block object, or string"}
		}
		return []ContentBlock{{Type: BlockText, Text: text}}, nil
	}
}

// TextContent builds a canonical single text block payload. Used by the
// importer when creating cards from markdown.
func TextContent(text string) json.RawMessage {
	blob, _ := json.Marshal([]ContentBlock{{Type: BlockText, Text: text}})
	return blob
}
