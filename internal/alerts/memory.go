package alerts

import (
	"context"
	"sync"
	"time"
)

// DefaultListLimit caps the alert listing.
const DefaultListLimit = 50

// MemoryStore keeps alerts in insertion order; ids are assigned sequentially.
type MemoryStore struct {
	mu     sync.Mutex
	alerts []Alert
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) FindRecent(_ context.Context, rule, ip string, since time.Time) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a := s.findRecentLocked(rule, ip, since); a != nil {
		c := a.clone()
		return &c, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) findRecentLocked(rule, ip string, since time.Time) *Alert {
	var best *Alert
	for i := range s.alerts {
		a := &s.alerts[i]
		if a.Rule != rule || a.SourceIP != ip || a.CreatedAt.Before(since) {
			continue
		}
		if best == nil || !a.CreatedAt.Before(best.CreatedAt) {
			best = a
		}
	}
	return best
}

func (s *MemoryStore) CreateIfNoRecent(_ context.Context, a *Alert, since time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findRecentLocked(a.Rule, a.SourceIP, since) != nil {
		return ErrRaceSuppressed
	}
	if a.Status == "" {
		a.Status = StatusOpen
	}
	a.ID = s.nextID
	s.nextID++
	s.alerts = append(s.alerts, a.clone())
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	c := s.alerts[i].clone()
	return &c, nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res := []Alert{}
	for i := len(s.alerts) - 1; i >= 0 && len(res) < limit; i-- {
		res = append(res, s.alerts[i].clone())
	}
	return res, nil
}

func (s *MemoryStore) Update(_ context.Context, id int64, fn func(*Alert) error) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	a := s.alerts[i].clone()
	if err := fn(&a); err != nil {
		return nil, err
	}
	s.alerts[i] = a.clone()
	return &a, nil
}

func (s *MemoryStore) indexLocked(id int64) int {
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			return i
		}
	}
	return -1
}
