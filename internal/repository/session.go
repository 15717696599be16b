package repository

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/openclaw/link-broker-go/internal/model"
	"github.com/openclaw/link-broker-go/internal/util"
)

// SessionStore is the in-memory registry of linking sessions. It is not
// safe for concurrent use: the broker event loop is its only caller.
type SessionStore struct {
	clock    clockwork.Clock
	sessions map[string]*model.Session
}

func NewSessionStore(clock clockwork.Clock) *SessionStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SessionStore{
		clock:    clock,
		sessions: make(map[string]*model.Session),
	}
}

// Create stores a new session. A supplied ID is used as-is and overwrites
// any existing record with that ID; the overwritten record is returned so
// the caller can release what it held.
func (s *SessionStore) Create(params model.CreateSessionParams) (created, replaced *model.Session) {
	id := params.ID
	if id == "" {
		id = util.NewSessionID()
		for s.sessions[id] != nil {
			id = util.NewSessionID()
		}
	}

	replaced = s.sessions[id]
	created = &model.Session{
		ID:        id,
		CreatedAt: s.clock.Now(),
		Owner:     params.Owner,
		Linked:    params.Linked,
		Flow:      params.Flow,
	}
	s.sessions[id] = created
	return created, replaced
}

func (s *SessionStore) Get(id string) *model.Session {
	return s.sessions[id]
}

func (s *SessionStore) Exists(id string) bool {
	_, ok := s.sessions[id]
	return ok
}

// MarkLinked flips linked to true. It reports whether anything changed.
func (s *SessionStore) MarkLinked(id string) bool {
	session, ok := s.sessions[id]
	if !ok || session.Linked {
		return false
	}
	session.Linked = true
	return true
}

// SetOwner attaches or, with an empty owner, detaches a session.
func (s *SessionStore) SetOwner(id, owner string) bool {
	session, ok := s.sessions[id]
	if !ok {
		return false
	}
	session.Owner = owner
	return true
}

// SetAttempt records the backend attempt now serving the session and clears
// any handle from a previous attempt.
func (s *SessionStore) SetAttempt(id string, attempt uint64) bool {
	session, ok := s.sessions[id]
	if !ok {
		return false
	}
	session.Attempt = attempt
	session.Handle = ""
	return true
}

// SetHandle stores the backend handle if the session is still served by the
// given attempt.
func (s *SessionStore) SetHandle(id string, attempt uint64, handle string) bool {
	session, ok := s.sessions[id]
	if !ok || session.Attempt != attempt {
		return false
	}
	session.Handle = handle
	return true
}

func (s *SessionStore) Remove(id string) *model.Session {
	session, ok := s.sessions[id]
	if !ok {
		return nil
	}
	delete(s.sessions, id)
	return session
}

// OwnedBy lists the IDs of sessions owned by a connection.
func (s *SessionStore) OwnedBy(owner string) []string {
	if owner == "" {
		return nil
	}
	var ids []string
	for id, session := range s.sessions {
		if session.Owner == owner {
			ids = append(ids, id)
		}
	}
	return ids
}

// RemoveAllOwnedBy deletes every session owned by a connection.
func (s *SessionStore) RemoveAllOwnedBy(owner string) []*model.Session {
	var removed []*model.Session
	for _, id := range s.OwnedBy(owner) {
		removed = append(removed, s.Remove(id))
	}
	return removed
}

// SweepExpired removes sessions older than ttl, along with any record whose
// timestamp is missing or lies in the future. A linked session is kept while
// a connection owns it or when it was restored from a persisted bundle; a
// detached linked session ages out like any other.
func (s *SessionStore) SweepExpired(now time.Time, ttl time.Duration) []*model.Session {
	var removed []*model.Session
	for id, session := range s.sessions {
		if retained(session) && validTimestamp(session.CreatedAt, now) {
			continue
		}
		if expired(session.CreatedAt, now, ttl) {
			delete(s.sessions, id)
			removed = append(removed, session)
		}
	}
	return removed
}

func (s *SessionStore) Len() int {
	return len(s.sessions)
}

func retained(session *model.Session) bool {
	return session.Linked && (session.Owner != "" || session.Flow == model.LinkFlowRestored)
}

func validTimestamp(createdAt, now time.Time) bool {
	return !createdAt.IsZero() && !createdAt.After(now)
}

func expired(createdAt, now time.Time, ttl time.Duration) bool {
	if !validTimestamp(createdAt, now) {
		return true
	}
	return now.Sub(createdAt) > ttl
}
