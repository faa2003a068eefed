package transport

import (
	"sync/atomic"

	"github.com/dmitrijs2005/liusync/internal/client/models"
)

// Sessions holds the current credentials. Readers get an immutable snapshot;
// writers replace the whole value.
type Sessions struct {
	p atomic.Pointer[models.SessionCredentials]
}

func NewSessions(initial *models.SessionCredentials) *Sessions {
	s := &Sessions{}
	if initial != nil {
		s.p.Store(initial)
	}
	return s
}

// Load returns the current snapshot or nil.
func (s *Sessions) Load() *models.SessionCredentials {
	return s.p.Load()
}

func (s *Sessions) Store(c *models.SessionCredentials) {
	s.p.Store(c)
}

// ClearIdentity drops token and serial and keeps the client key. It reports
// whether an identity was present.
func (s *Sessions) ClearIdentity() bool {
	for {
		cur := s.p.Load()
		if !cur.HasIdentity() {
			return false
		}
		if s.p.CompareAndSwap(cur, cur.WithoutIdentity()) {
			return true
		}
	}
}

// Clear forgets the session entirely.
func (s *Sessions) Clear() {
	s.p.Store(nil)
}
