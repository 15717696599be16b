package repository

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/openclaw/link-broker-go/internal/model"
)

// PairingStore maps live pairing codes to the session they resolve to. It
// references sessions by ID only and, like SessionStore, belongs to the
// broker event loop.
type PairingStore struct {
	clock     clockwork.Clock
	allocator *CodeAllocator
	codes     map[string]*model.PairingCode
}

func NewPairingStore(clock clockwork.Clock, allocator *CodeAllocator) *PairingStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if allocator == nil {
		allocator = NewCodeAllocator()
	}
	return &PairingStore{
		clock:     clock,
		allocator: allocator,
		codes:     make(map[string]*model.PairingCode),
	}
}

// Issue allocates a fresh code for the session. Allocation failures leave
// the store untouched.
func (s *PairingStore) Issue(sessionID, phoneNumber string) (*model.PairingCode, error) {
	code, err := s.allocator.Allocate(s.Contains)
	if err != nil {
		return nil, err
	}

	pc := &model.PairingCode{
		Code:        code,
		SessionID:   sessionID,
		PhoneNumber: phoneNumber,
		CreatedAt:   s.clock.Now(),
	}
	s.codes[code] = pc
	return pc, nil
}

// Consume looks up and removes a code in one step.
func (s *PairingStore) Consume(code string) *model.PairingCode {
	pc, ok := s.codes[code]
	if !ok {
		return nil
	}
	delete(s.codes, code)
	return pc
}

func (s *PairingStore) Contains(code string) bool {
	_, ok := s.codes[code]
	return ok
}

// RemoveBySession drops every code that resolves to the session.
func (s *PairingStore) RemoveBySession(sessionID string) []string {
	return s.RemoveStale(sessionID, "")
}

// RemoveStale drops the session's codes except keep, which is the code
// just issued for a session that replaced an older record with the same ID.
func (s *PairingStore) RemoveStale(sessionID, keep string) []string {
	var removed []string
	for code, pc := range s.codes {
		if pc.SessionID == sessionID && code != keep {
			delete(s.codes, code)
			removed = append(removed, code)
		}
	}
	return removed
}

// SweepExpired removes codes older than ttl and codes with a missing or
// future timestamp.
func (s *PairingStore) SweepExpired(now time.Time, ttl time.Duration) []string {
	var removed []string
	for code, pc := range s.codes {
		if expired(pc.CreatedAt, now, ttl) {
			delete(s.codes, code)
			removed = append(removed, code)
		}
	}
	return removed
}

func (s *PairingStore) Len() int {
	return len(s.codes)
}
