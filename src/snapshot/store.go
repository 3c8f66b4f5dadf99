package snapshot

import (
	"sync"
	"time"

	"stock-streamer/src/models"
)

// -----------------------------------------------------------------------------
// Snapshot Store
// -----------------------------------------------------------------------------

// Store holds the current and previous complete record sets. Snapshots
// are replaced wholesale, never mutated field-by-field, so readers can
// never observe a half-updated set. The poll scheduler is the single
// writer; everything else reads.
type Store struct {
	mu       sync.RWMutex
	current  *models.MSnapshot
	previous *models.MSnapshot
}

// -----------------------------------------------------------------------------

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// -----------------------------------------------------------------------------

// Replace installs next as the current snapshot and returns the
// snapshot that was current before the swap (nil on the first cycle).
// The discarded previous snapshot has no remaining owner.
func (s *Store) Replace(next *models.MSnapshot) *models.MSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current
	s.previous = prev
	s.current = next
	return prev
}

// -----------------------------------------------------------------------------

// Current returns the current snapshot, or nil before the first cycle.
func (s *Store) Current() *models.MSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// -----------------------------------------------------------------------------

// Previous returns the snapshot of the cycle before the current one.
func (s *Store) Previous() *models.MSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.previous
}

// -----------------------------------------------------------------------------

// LastFetchTime returns the capture time of the current snapshot, or
// the zero time when no snapshot exists yet.
func (s *Store) LastFetchTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return time.Time{}
	}
	return s.current.CapturedAt
}

// -----------------------------------------------------------------------------

// TotalRecords returns the record count of the current snapshot.
func (s *Store) TotalRecords() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return 0
	}
	return s.current.Len()
}
