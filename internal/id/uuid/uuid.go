// Package uuid generates time-ordered run identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUIDv7 run IDs, optionally prefixed.
type Generator struct {
	prefix string
}

// New returns a Generator. A non-empty prefix is joined to each ID with a dash.
func New(prefix string) *Generator {
	return &Generator{prefix: prefix}
}

// NewID returns a new run ID. IDs sort by creation time.
func (g *Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	if g.prefix == "" {
		return id.String(), nil
	}
	return g.prefix + "-" + id.String(), nil
}
