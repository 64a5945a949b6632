package events

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps the log in process. Used by the memory driver and by tests.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
	nextID int64
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: func() time.Time { return time.Now().UTC() }}
}

func (s *MemoryStore) Append(_ context.Context, e *Event) (int64, error) {
	if err := Normalize(e); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	e.CreatedAt = s.now()
	s.events = append(s.events, cloneEvent(*e))
	return e.ID, nil
}

func (s *MemoryStore) CountInWindow(_ context.Context, types []Type, ip string, start, end time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	s.scan(types, ip, start, end, func(Event) { n++ })
	return n, nil
}

func (s *MemoryStore) BoundsInWindow(_ context.Context, types []Type, ip string, start, end time.Time) (time.Time, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var first, last time.Time
	found := false
	s.scan(types, ip, start, end, func(e Event) {
		if !found || e.OccurredAt.Before(first) {
			first = e.OccurredAt
		}
		if !found || e.OccurredAt.After(last) {
			last = e.OccurredAt
		}
		found = true
	})
	if !found {
		return time.Time{}, time.Time{}, ErrNotFound
	}
	return first, last, nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]Event, error) {
	s.mu.RLock()
	matched := []Event{}
	for _, e := range s.events {
		if f.SourceIP != "" && e.SourceIP != f.SourceIP {
			continue
		}
		if f.Service != "" && e.Service != f.Service {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if !f.Since.IsZero() && e.OccurredAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.OccurredAt.After(f.Until) {
			continue
		}
		matched = append(matched, cloneEvent(e))
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].OccurredAt.Equal(matched[j].OccurredAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})
	if limit := f.limit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// scan must be called with s.mu held.
func (s *MemoryStore) scan(types []Type, ip string, start, end time.Time, fn func(Event)) {
	for _, e := range s.events {
		if e.SourceIP != ip || !containsType(types, e.Type) {
			continue
		}
		if e.OccurredAt.Before(start) || e.OccurredAt.After(end) {
			continue
		}
		fn(e)
	}
}

func containsType(types []Type, t Type) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func cloneEvent(e Event) Event {
	if e.Metadata != nil {
		meta := make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			meta[k] = v
		}
		e.Metadata = meta
	}
	if e.UserID != nil {
		id := *e.UserID
		e.UserID = &id
	}
	return e
}
