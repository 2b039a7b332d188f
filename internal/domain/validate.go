package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	maxDeckNameLen        = 100
	maxDeckDescriptionLen = 1000
	maxTags               = 20
	maxTagLen             = 50
)

// deckNameForbidden are characters excluded from deck names to keep them
// safe for file paths and URLs.
const deckNameForbidden = `<>:"|?*\/`

// Validator performs boundary validation of entities and API payloads.
// Construct one with NewValidator and inject it where needed; there is no
// package-level instance.
type Validator struct {
	v *validator.Validate
}

// NewValidator builds a Validator with struct-tag validation enabled.
func NewValidator() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// Struct validates a payload struct against its `validate` tags and maps
// the first failure onto a domain ValidationError.
func (val *Validator) Struct(payload any) error {
	err := val.v.Struct(payload)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{
			Field: strings.ToLower(fe.Field()),
			Msg:   fmt.Sprintf("failed %q constraint", fe.Tag()),
		}
	}
	return fmt.Errorf("validating payload: %w", err)
}

// DeckName trims and validates a deck name, returning the cleaned value.
func (val *Validator) DeckName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Field: "name", Msg: "deck name is required"}
	}
	if len(name) > maxDeckNameLen {
		return "", &ValidationError{Field: "name", Msg: fmt.Sprintf("deck name exceeds %d characters", maxDeckNameLen)}
	}
	if i := strings.IndexAny(name, deckNameForbidden); i >= 0 {
		return "", &ValidationError{Field: "name", Msg: fmt.Sprintf("deck name must not contain %q", name[i])}
	}
	return name, nil
}

// DeckDescription trims and validates an optional deck description.
func (val *Validator) DeckDescription(desc string) (string, error) {
	desc = strings.TrimSpace(desc)
	if len(desc) > maxDeckDescriptionLen {
		return "", &ValidationError{Field: "description", Msg: fmt.Sprintf("description exceeds %d characters", maxDeckDescriptionLen)}
	}
	return desc, nil
}

// NormalizeTags trims, drops empties, and deduplicates tags
// case-insensitively, keeping the first spelling seen. Order is preserved.
func (val *Validator) NormalizeTags(tags []string) ([]string, error) {
	if tags == nil {
		return nil, nil
	}
	if len(tags) > maxTags {
		return nil, &ValidationError{Field: "tags", Msg: fmt.Sprintf("at most %d tags allowed", maxTags)}
	}
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if len(tag) > maxTagLen {
			return nil, &ValidationError{Field: "tags", Msg: fmt.Sprintf("tag %q exceeds %d characters", tag, maxTagLen)}
		}
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
	}
	return out, nil
}
