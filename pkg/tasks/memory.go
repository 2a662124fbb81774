package tasks

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps tasks in process. Terminal tasks older than Retention
// are pruned, and when Capacity is reached the oldest terminal task is
// evicted to make room.
type MemoryStore struct {
	mu        sync.Mutex
	tasks     map[string]*Task
	capacity  int
	retention time.Duration
	now       func() time.Time
}

func NewMemoryStore(capacity int, retention time.Duration) *MemoryStore {
	if capacity <= 0 {
		capacity = 200
	}
	return &MemoryStore{
		tasks:     make(map[string]*Task),
		capacity:  capacity,
		retention: retention,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Create(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	if len(s.tasks) >= s.capacity && !s.evictOldestLocked() {
		return ErrStoreFull
	}
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	s.tasks[t.ID] = clone(t)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(t), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	fn(t)
	t.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) AppendLog(ctx context.Context, id string, line LogLine) error {
	return s.Update(ctx, id, func(t *Task) { appendLog(t, line) })
}

// List returns every task, newest first.
func (s *MemoryStore) List(_ context.Context) ([]Task, error) {
	s.mu.Lock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *clone(t))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Prune(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked(), nil
}

func (s *MemoryStore) pruneLocked() int {
	if s.retention <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.retention)
	n := 0
	for id, t := range s.tasks {
		if t.Status.Terminal() && t.UpdatedAt.Before(cutoff) {
			delete(s.tasks, id)
			n++
		}
	}
	return n
}

func (s *MemoryStore) evictOldestLocked() bool {
	var oldest *Task
	for _, t := range s.tasks {
		if !t.Status.Terminal() {
			continue
		}
		if oldest == nil || t.UpdatedAt.Before(oldest.UpdatedAt) {
			oldest = t
		}
	}
	if oldest == nil {
		return false
	}
	delete(s.tasks, oldest.ID)
	return true
}
