package importer

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// contentHash fingerprints a draft for import deduplication. Each part is
// lowercased, trimmed, and newline-normalized before hashing, so cosmetic
// edits to a source file do not duplicate cards.
func contentHash(d Draft) string {
	normalize := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		return strings.ReplaceAll(p, "\r\n", "\n")
	}
	joined := strings.Join([]string{normalize(d.Front), normalize(d.Back), normalize(d.Context)}, "\n")
	return fmt.Sprintf("%x", sha256.Sum256([]byte(joined)))
}
