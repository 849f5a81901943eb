// Package enrich computes the derived contact fields: geocoded
// location, inferred gender, and the best-known-gender resolution.
// Each enrichment is guarded by a content hash so unchanged inputs are
// never re-processed.
package enrich

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ContentHash fingerprints the inputs of an enrichment step. The
// stored hash is compared with the freshly computed one to decide
// whether the step must run again.
func ContentHash(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(strings.TrimSpace(strings.ToLower(p))))
	}
	return hex.EncodeToString(h.Sum(nil))
}
