// Package store holds the in-memory session, pair code and trust token tables.
//
// None of the repositories synchronize internally: the relay owns them and
// serializes every operation under its own lock.
package store

import (
	"github.com/tabremote/relay-server/internal/model"
)

type SessionRepository interface {
	FindByID(id string) (*model.Session, bool)
	Create(session *model.Session)
	Delete(id string)
	Count() int
	Each(fn func(*model.Session))
}

type sessionRepo struct {
	sessions map[string]*model.Session
}

func NewSessionRepository() SessionRepository {
	return &sessionRepo{sessions: make(map[string]*model.Session)}
}

func (r *sessionRepo) FindByID(id string) (*model.Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

func (r *sessionRepo) Create(session *model.Session) {
	r.sessions[session.ID] = session
}

func (r *sessionRepo) Delete(id string) {
	delete(r.sessions, id)
}

func (r *sessionRepo) Count() int {
	return len(r.sessions)
}

func (r *sessionRepo) Each(fn func(*model.Session)) {
	for _, s := range r.sessions {
		fn(s)
	}
}
