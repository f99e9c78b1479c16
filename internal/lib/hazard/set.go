package hazard

import "sync"

// Set is the live hazard registry shared by the API, the feed ingesters,
// and the navigation session. Zones are only appended and removed, never
// mutated in place. Every change bumps the revision and pokes each
// subscriber's channel; notifications are coalesced, so a slow consumer
// sees at least one signal for any burst of changes.
type Set struct {
	mu       sync.RWMutex
	zones    []Zone
	revision uint64
	subs     map[int]chan struct{}
	nextSub  int
}

// NewSet returns an empty registry.
func NewSet() *Set {
	return &Set{subs: make(map[int]chan struct{})}
}

// Add registers a zone and notifies subscribers.
func (s *Set) Add(z Zone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zones = append(s.zones, z)
	s.bumpLocked()
}

// Remove deletes the zone with the given id. It reports whether anything
// was removed.
func (s *Set) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, z := range s.zones {
		if z.ID == id {
			s.zones = append(s.zones[:i], s.zones[i+1:]...)
			s.bumpLocked()
			return true
		}
	}
	return false
}

// ReplaceSource atomically swaps every zone carrying the given source tag
// for the new batch. Feed refreshes use this so a shrinking advisory set
// also clears its stale zones, with a single notification.
func (s *Set) ReplaceSource(source string, zones []Zone) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.zones[:0]
	for _, z := range s.zones {
		if z.Source != source {
			kept = append(kept, z)
		}
	}
	s.zones = append(kept, zones...)
	s.bumpLocked()
}

// Get returns the zone with the given id.
func (s *Set) Get(id string) (Zone, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, z := range s.zones {
		if z.ID == id {
			return z, true
		}
	}
	return Zone{}, false
}

// Snapshot returns a copy of the current zone list.
func (s *Set) Snapshot() []Zone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Zone(nil), s.zones...)
}

// Len returns the number of live zones.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.zones)
}

// Revision returns a counter that increases on every change.
func (s *Set) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Subscribe registers for change signals. The returned channel has a one
// slot buffer; callers drain it and re-read Snapshot. The cancel func must
// be called when done.
func (s *Set) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Set) bumpLocked() {
	s.revision++
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
