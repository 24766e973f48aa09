package util

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewSessionID returns an opaque random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// NewTrustToken returns an unguessable trust token (UUIDv4, 122 random bits).
func NewTrustToken() string {
	return uuid.NewString()
}

// NewRemoteID returns a ULID; remote ids sort by join time in logs.
func NewRemoteID(now time.Time) string {
	return newULID(now)
}

// NewConnID returns a ULID identifying one socket.
func NewConnID(now time.Time) string {
	return newULID(now)
}

// NewAttemptID returns a ULID naming one rate-limited attempt.
func NewAttemptID(now time.Time) string {
	return newULID(now)
}

func newULID(now time.Time) string {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}
