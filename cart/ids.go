package cart

import "github.com/google/uuid"

// NewID generates an opaque unique identifier for carts, items and users.
// IDs are never reused within or across processes.
func NewID() string {
	return uuid.NewString()
}
