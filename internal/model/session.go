package model

import "time"

// Session binds one host connection to zero or more remote connections.
// Connections are referenced by connection id.
type Session struct {
	ID                string
	HostConnID        string
	Remotes           map[string]struct{}
	PairCode          string
	PairCodeExpiresAt time.Time
	CreatedAt         time.Time
}

func NewSession(id, hostConnID string, now time.Time) *Session {
	return &Session{
		ID:         id,
		HostConnID: hostConnID,
		Remotes:    make(map[string]struct{}),
		CreatedAt:  now,
	}
}

func (s *Session) ClearPairCode() {
	s.PairCode = ""
	s.PairCodeExpiresAt = time.Time{}
}

type PairCode struct {
	Code      string
	SessionID string
	ExpiresAt time.Time
}

func (p PairCode) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

type TrustToken struct {
	Token     string
	SessionID string
	DeviceID  string
	ExpiresAt time.Time
}

func (t TrustToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
