package auth

import (
	"os"
	"time"
)

// EnvironmentStore reads a single session from IGEVENTS_SESSION_ID,
// IGEVENTS_CSRF_TOKEN and IGEVENTS_USER_AGENT. It is read-only.
type EnvironmentStore struct {
	getenv func(string) string
}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{getenv: os.Getenv}
}

func (e *EnvironmentStore) Save(*Session) error  { return ErrStoreUnavailable }
func (e *EnvironmentStore) Delete(string) error { return ErrStoreUnavailable }

func (e *EnvironmentStore) Load(account string) (*Session, error) {
	sid, csrf := e.getenv("IGEVENTS_SESSION_ID"), e.getenv("IGEVENTS_CSRF_TOKEN")
	if sid == "" || csrf == "" {
		return nil, ErrCredentialsNotFound
	}
	if account == "" {
		account = e.getenv("IGEVENTS_INSTAGRAM_ACCOUNT")
	}
	if account == "" {
		account = "default"
	}
	return &Session{
		Account:   account,
		SessionID: sid,
		CSRFToken: csrf,
		UserAgent: e.getenv("IGEVENTS_USER_AGENT"),
		SavedAt:   time.Time{},
	}, nil
}

func (e *EnvironmentStore) List() ([]*Session, error) {
	s, err := e.Load("")
	if err != nil {
		return nil, nil
	}
	return []*Session{s}, nil
}
