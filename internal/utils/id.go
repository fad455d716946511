package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random unique identifier.
func NewID() string {
	return uuid.NewString()
}

// NewGuestTag returns a short server-assigned sender tag such as "guest-1a2b3c4d".
func NewGuestTag() string {
	return "guest-" + shortHex(8)
}

// NewTagSuffix returns a random 6 hex digit discriminator for sender tags.
func NewTagSuffix() string {
	return shortHex(6)
}

func shortHex(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
