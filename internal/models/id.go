package models

import (
	"strings"

	"github.com/google/uuid"
)

// CanonicalID returns the canonical lowercase form of a UUID identifier.
// Values that are not UUIDs are returned trimmed and otherwise untouched, so
// lookups with them simply miss.
func CanonicalID(id string) string {
	id = strings.TrimSpace(id)
	parsed, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	return parsed.String()
}

// NewID generates a new random identifier.
func NewID() string {
	return uuid.New().String()
}
