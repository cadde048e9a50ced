package proto

import (
	"strings"

	"github.com/google/uuid"
)

// NewEventID generates a random ID for an event.
func NewEventID() string {
	return uuid.New().String()
}

// NewID generates an opaque identifier. With no seed components it is
// random; with seed components it is deterministic (same seed, same ID),
// which keeps replay fixtures and tests stable.
func NewID(seed ...string) string {
	if len(seed) == 0 {
		return uuid.New().String()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(seed, "/"))).String()
}
