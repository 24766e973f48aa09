package store

import (
	"time"

	"github.com/tabremote/relay-server/internal/model"
)

// TrustTokenRepository holds live trust tokens plus the tokens revoked by a
// host disconnect. Revoked tokens are unusable but remembered until their
// original expiry so a late VALIDATE_SESSION can be told the host is gone.
type TrustTokenRepository interface {
	FindByToken(token string) (model.TrustToken, bool)
	FindRevoked(token string) (model.TrustToken, bool)
	Create(token model.TrustToken)
	Delete(token string)
	RevokeBySessionID(sessionID string) int
	DeleteWhere(fn func(model.TrustToken) bool) int
	PurgeRevoked(now time.Time) int
	Count() int
}

type trustTokenRepo struct {
	tokens  map[string]model.TrustToken
	revoked map[string]model.TrustToken
}

func NewTrustTokenRepository() TrustTokenRepository {
	return &trustTokenRepo{
		tokens:  make(map[string]model.TrustToken),
		revoked: make(map[string]model.TrustToken),
	}
}

func (r *trustTokenRepo) FindByToken(token string) (model.TrustToken, bool) {
	t, ok := r.tokens[token]
	return t, ok
}

func (r *trustTokenRepo) FindRevoked(token string) (model.TrustToken, bool) {
	t, ok := r.revoked[token]
	return t, ok
}

func (r *trustTokenRepo) Create(token model.TrustToken) {
	delete(r.revoked, token.Token)
	r.tokens[token.Token] = token
}

func (r *trustTokenRepo) Delete(token string) {
	delete(r.tokens, token)
	delete(r.revoked, token)
}

// RevokeBySessionID moves every live token of the session to the revoked set
// and returns how many were moved.
func (r *trustTokenRepo) RevokeBySessionID(sessionID string) int {
	revoked := 0
	for key, t := range r.tokens {
		if t.SessionID == sessionID {
			delete(r.tokens, key)
			r.revoked[key] = t
			revoked++
		}
	}
	return revoked
}

func (r *trustTokenRepo) DeleteWhere(fn func(model.TrustToken) bool) int {
	removed := 0
	for key, t := range r.tokens {
		if fn(t) {
			delete(r.tokens, key)
			removed++
		}
	}
	return removed
}

// PurgeRevoked forgets revoked tokens whose expiry has passed.
func (r *trustTokenRepo) PurgeRevoked(now time.Time) int {
	purged := 0
	for key, t := range r.revoked {
		if t.Expired(now) {
			delete(r.revoked, key)
			purged++
		}
	}
	return purged
}

// Count returns the number of live tokens.
func (r *trustTokenRepo) Count() int {
	return len(r.tokens)
}
