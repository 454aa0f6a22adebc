// Package window holds the in-memory, time-bounded set of strikes that
// renderers read from.
package window

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-lightning-service/internal/domain"
)

// Retention is the fixed lookback beyond which strikes are evicted.
const Retention = 60 * time.Minute

// ErrClosed is returned by apply operations after Close.
var ErrClosed = errors.New("window store closed")

// Snapshot is a read-only copy of the window for renderers.
type Snapshot struct {
	Strikes     []domain.Strike `json:"strikes"`
	LastUpdated time.Time       `json:"last_updated"`
	Error       string          `json:"error,omitempty"`
	Cursor      domain.Cursor   `json:"cursor"`
}

// Result describes the effect of one apply.
type Result struct {
	Added   []domain.Strike
	Evicted int
	Size    int
}

// Store is the mutable strike window plus the incremental fetch cursor.
// A single writer (the poller) and any number of readers may use it
// concurrently.
type Store struct {
	clock      clockwork.Clock
	maxStrikes int

	mu          sync.RWMutex
	strikes     []domain.Strike
	ids         map[string]struct{}
	cursor      domain.Cursor
	lastUpdated time.Time
	lastError   string
	closed      bool
}

// New creates an empty Store. maxStrikes caps the window (newest kept);
// zero disables the cap.
func New(clock clockwork.Clock, maxStrikes int) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		clock:      clock,
		maxStrikes: maxStrikes,
		ids:        make(map[string]struct{}),
	}
}

// ApplyInitial replaces the window wholesale with the batch.
func (s *Store) ApplyInitial(batch domain.Batch) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Result{}, ErrClosed
	}

	previous := s.ids
	previousLen := len(s.strikes)

	s.strikes = nil
	s.ids = make(map[string]struct{}, len(batch.Strikes))
	s.appendFresh(batch.Strikes, s.cutoff())
	s.enforceCap()

	// Strikes that were already in the window before the replace are not new.
	var fresh []domain.Strike
	retained := 0
	for _, st := range s.strikes {
		if _, ok := previous[st.ID]; ok {
			retained++
			continue
		}
		fresh = append(fresh, st)
	}

	s.finishApply(batch)
	return Result{Added: fresh, Evicted: previousLen - retained, Size: len(s.strikes)}, nil
}

// ApplyIncremental evicts strikes older than the retention window and appends
// the batch, skipping strikes whose ID is already present.
func (s *Store) ApplyIncremental(batch domain.Batch) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Result{}, ErrClosed
	}

	cutoff := s.cutoff()
	evicted := s.evictBefore(cutoff)
	added := s.appendFresh(batch.Strikes, cutoff)
	evicted += s.enforceCap()
	s.finishApply(batch)
	return Result{Added: s.present(added), Evicted: evicted, Size: len(s.strikes)}, nil
}

// Cursor returns the current incremental fetch cursor.
func (s *Store) Cursor() domain.Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// Len returns the number of strikes in the window.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.strikes)
}

// RecordError stores a user-visible message for the last failed tick.
// Existing strikes are kept.
func (s *Store) RecordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.lastError = ""
		return
	}
	s.lastError = err.Error()
}

// Snapshot returns a copy of the current window.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	strikes := make([]domain.Strike, len(s.strikes))
	copy(strikes, s.strikes)
	return Snapshot{
		Strikes:     strikes,
		LastUpdated: s.lastUpdated,
		Error:       s.lastError,
		Cursor:      s.cursor,
	}
}

// Close rejects further applies. It is safe to call more than once.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Store) cutoff() int64 {
	return s.clock.Now().Add(-Retention).UnixMilli()
}

// evictBefore drops strikes older than cutoff and returns how many were removed.
func (s *Store) evictBefore(cutoff int64) int {
	kept := s.strikes[:0]
	evicted := 0
	for _, st := range s.strikes {
		if st.TimestampMillis < cutoff {
			delete(s.ids, st.ID)
			evicted++
			continue
		}
		kept = append(kept, st)
	}
	clear(s.strikes[len(kept):])
	s.strikes = kept
	return evicted
}

// appendFresh appends strikes that are inside the window and not yet present.
func (s *Store) appendFresh(strikes []domain.Strike, cutoff int64) []domain.Strike {
	added := make([]domain.Strike, 0, len(strikes))
	for _, st := range strikes {
		if st.TimestampMillis < cutoff {
			continue
		}
		if _, ok := s.ids[st.ID]; ok {
			continue
		}
		s.ids[st.ID] = struct{}{}
		s.strikes = append(s.strikes, st)
		added = append(added, st)
	}
	return added
}

// enforceCap trims the oldest entries (by insertion order) beyond maxStrikes.
func (s *Store) enforceCap() int {
	if s.maxStrikes <= 0 || len(s.strikes) <= s.maxStrikes {
		return 0
	}
	drop := len(s.strikes) - s.maxStrikes
	for _, st := range s.strikes[:drop] {
		delete(s.ids, st.ID)
	}
	s.strikes = append([]domain.Strike(nil), s.strikes[drop:]...)
	return drop
}

// present filters strikes down to those still held after the cap was applied.
func (s *Store) present(strikes []domain.Strike) []domain.Strike {
	out := strikes[:0]
	for _, st := range strikes {
		if _, ok := s.ids[st.ID]; ok {
			out = append(out, st)
		}
	}
	return out
}

func (s *Store) finishApply(batch domain.Batch) {
	if batch.HasNext {
		s.cursor = batch.Next
	}
	s.lastUpdated = s.clock.Now()
	s.lastError = ""
}
