// Package auth stores Instagram web sessions for the session scraper tier.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"
)

// Session holds the browser cookies that authenticate Instagram web requests.
type Session struct {
	Account   string    `json:"account"`
	SessionID string    `json:"session_id"`
	CSRFToken string    `json:"csrf_token"`
	UserAgent string    `json:"user_agent,omitempty"`
	SavedAt   time.Time `json:"saved_at"`
}

// Validate checks that the cookies needed for a request are present.
func (s *Session) Validate() error {
	switch {
	case s == nil:
		return ErrInvalidCredentials
	case s.Account == "":
		return errors.New("account is required")
	case s.SessionID == "":
		return errors.New("session ID is required")
	case s.CSRFToken == "":
		return errors.New("CSRF token is required")
	}
	return nil
}

// Store persists sessions keyed by account name.
type Store interface {
	Save(s *Session) error
	Load(account string) (*Session, error)
	List() ([]*Session, error)
	Delete(account string) error
}

var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)

// Manager layers several stores: writes go to the first that accepts them,
// reads come from the first that has the account.
type Manager struct {
	stores []Store
	now    func() time.Time
}

// NewManager uses the system keychain when available, then an encrypted file
// under the config directory, then environment variables.
func NewManager() (*Manager, error) {
	var stores []Store
	if ks, err := NewKeyringStore(); err == nil {
		stores = append(stores, ks)
	}

	dir, err := ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	fs, err := NewEncryptedFileStore(filepath.Join(dir, "sessions.enc"), "")
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, fs, NewEnvironmentStore())
	return NewManagerWithStores(stores...), nil
}

func NewManagerWithStores(stores ...Store) *Manager {
	return &Manager{stores: stores, now: time.Now}
}

func (m *Manager) Save(s *Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s.SavedAt = m.now()

	var lastErr error
	for _, st := range m.stores {
		if err := st.Save(s); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to store session: %w", lastErr)
	}
	return ErrStoreUnavailable
}

func (m *Manager) Load(account string) (*Session, error) {
	for _, st := range m.stores {
		if s, err := st.Load(account); err == nil && s != nil {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, account)
}

// Resolve loads account, or the most recently saved session when account is empty.
func (m *Manager) Resolve(account string) (*Session, error) {
	if account != "" {
		return m.Load(account)
	}
	sessions, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, ErrCredentialsNotFound
	}
	return sessions[0], nil
}

// List merges every store, newest session per account first.
func (m *Manager) List() ([]*Session, error) {
	byAccount := make(map[string]*Session)
	for _, st := range m.stores {
		sessions, err := st.List()
		if err != nil {
			continue
		}
		for _, s := range sessions {
			if have, ok := byAccount[s.Account]; !ok || s.SavedAt.After(have.SavedAt) {
				byAccount[s.Account] = s
			}
		}
	}
	out := make([]*Session, 0, len(byAccount))
	for _, s := range byAccount {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SavedAt.After(out[j].SavedAt) })
	return out, nil
}

func (m *Manager) Delete(account string) error {
	deleted := false
	var lastErr error
	for _, st := range m.stores {
		if err := st.Delete(account); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}
	if deleted {
		return nil
	}
	if lastErr != nil && !errors.Is(lastErr, ErrStoreUnavailable) {
		return fmt.Errorf("failed to delete session: %w", lastErr)
	}
	return fmt.Errorf("%w: %s", ErrCredentialsNotFound, account)
}

// ConfigDir returns and creates the per-user igevents configuration directory.
func ConfigDir() (string, error) {
	var dir string
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, "Library", "Application Support", "igevents")
	case "windows":
		dir = filepath.Join(os.Getenv("APPDATA"), "igevents")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			dir = filepath.Join(xdg, "igevents")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dir = filepath.Join(home, ".config", "igevents")
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// Masked returns a copy safe to print.
func (s *Session) Masked() *Session {
	c := *s
	c.SessionID = mask(s.SessionID)
	c.CSRFToken = mask(s.CSRFToken)
	return &c
}

func mask(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
