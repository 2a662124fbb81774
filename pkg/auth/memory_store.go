package auth

import (
	"sort"
	"sync"
)

// MemoryStore is a process-local Store, used by tests and one-off runs.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	SaveErr  error
}

func NewMemoryStore(sessions ...*Session) *MemoryStore {
	m := &MemoryStore{sessions: make(map[string]Session)}
	for _, s := range sessions {
		m.sessions[s.Account] = *s
	}
	return m
}

func (m *MemoryStore) Save(s *Session) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Account] = *s
	return nil
}

func (m *MemoryStore) Load(account string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[account]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &s, nil
}

func (m *MemoryStore) List() ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out, nil
}

func (m *MemoryStore) Delete(account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[account]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.sessions, account)
	return nil
}
