package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/zalando/go-keyring"
)

const (
	keyringService  = "igevents"
	keyringPrefix   = "instagram_session_"
	keyringIndexKey = "instagram_sessions_index"
)

// KeyringStore keeps sessions in the OS keychain. The keychain cannot be
// enumerated portably, so account names are tracked in an index entry.
type KeyringStore struct{}

func NewKeyringStore() (*KeyringStore, error) {
	const probe = "availability_probe"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, probe)
	return &KeyringStore{}, nil
}

func (k *KeyringStore) Save(s *Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := keyring.Set(keyringService, keyringPrefix+s.Account, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return k.updateIndex(func(idx map[string]bool) { idx[s.Account] = true })
}

func (k *KeyringStore) Load(account string) (*Session, error) {
	if account == "" {
		return nil, ErrInvalidCredentials
	}
	data, err := keyring.Get(keyringService, keyringPrefix+account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}
	var s Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

func (k *KeyringStore) List() ([]*Session, error) {
	idx, err := k.index()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(idx))
	for name := range idx {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []*Session
	for _, name := range names {
		if s, err := k.Load(name); err == nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func (k *KeyringStore) Delete(account string) error {
	if account == "" {
		return ErrInvalidCredentials
	}
	err := keyring.Delete(keyringService, keyringPrefix+account)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrCredentialsNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return k.updateIndex(func(idx map[string]bool) { delete(idx, account) })
}

func (k *KeyringStore) index() (map[string]bool, error) {
	idx := map[string]bool{}
	data, err := keyring.Get(keyringService, keyringIndexKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring index: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &idx); err != nil {
		return map[string]bool{}, nil
	}
	return idx, nil
}

func (k *KeyringStore) updateIndex(mutate func(map[string]bool)) error {
	idx, err := k.index()
	if err != nil {
		return err
	}
	mutate(idx)
	data, _ := json.Marshal(idx)
	return keyring.Set(keyringService, keyringIndexKey, string(data))
}
