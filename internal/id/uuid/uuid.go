// Package uuid generates time-ordered identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUIDv7 strings, optionally prefixed.
type Generator struct {
	prefix string
}

// New returns a Generator. A non-empty prefix is joined with "-".
func New(prefix string) *Generator {
	if prefix != "" {
		prefix += "-"
	}
	return &Generator{prefix: prefix}
}

// NewID returns a prefixed UUIDv7.
func (g *Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return g.prefix + id.String(), nil
}

// MustID returns NewID, falling back to a random UUIDv4 when the v7 source fails.
func (g *Generator) MustID() string {
	if id, err := g.NewID(); err == nil {
		return id
	}
	return g.prefix + uuid.NewString()
}
