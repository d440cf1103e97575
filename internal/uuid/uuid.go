// Package uuid generates unique identifiers for messages.
package uuid

import "github.com/google/uuid"

// New returns a random UUIDv4 string.
func New() string {
	return uuid.NewString()
}
