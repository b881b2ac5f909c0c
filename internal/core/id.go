package core

import "github.com/google/uuid"

// NewID returns a collision-resistant identifier for a new entity.
// Entities accept a caller-supplied id and fall back to this when empty.
func NewID() string {
	return uuid.NewString()
}
