// Package idgen generates opaque identifiers for every aggregate.
package idgen

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// New returns a new 24-character hex identifier. The opaque X-User-Id
// auth header (spec.md §6.1) requires this exact shape, so every
// aggregate id uses it rather than uuid's canonical dashed form.
func New() string {
	id := uuid.New()
	return hex.EncodeToString(id[:12])
}
