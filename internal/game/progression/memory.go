package progression

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]Profile
	now      func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]Profile), now: time.Now}
}

// Get implements Store. The returned profile is a copy.
func (m *MemoryStore) Get(_ context.Context, studentID string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[studentID]
	if !ok {
		return nil, ErrStudentNotFound
	}
	return &p, nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	cp.UpdatedAt = m.now()
	m.profiles[p.StudentID] = cp
	return nil
}

// Update implements Store.
func (m *MemoryStore) Update(_ context.Context, studentID string, fn func(*Profile) error) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[studentID]
	if !ok {
		return nil, ErrStudentNotFound
	}
	if err := fn(&p); err != nil {
		return nil, err
	}
	p.UpdatedAt = m.now()
	m.profiles[studentID] = p
	out := p
	return &out, nil
}
