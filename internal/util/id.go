package util

import "github.com/google/uuid"

// NewID returns a random (v4) UUID string. Article ids rely on this being
// globally unique: the article cache is keyed by id alone.
func NewID() string {
	return uuid.NewString()
}
