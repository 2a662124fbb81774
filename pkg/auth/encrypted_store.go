package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000
	fileFormat = 2
)

// EncryptedFileStore keeps every session in one AES-GCM encrypted JSON file.
// The key is derived with PBKDF2 from IGEVENTS_PASSPHRASE or, failing that,
// a random passphrase written next to the file.
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.RWMutex
}

type envelope struct {
	Version   int    `json:"version"`
	Salt      string `json:"salt"`
	Encrypted string `json:"encrypted"`
}

// NewEncryptedFileStore opens the store at path. An empty passphrase is
// resolved from the environment or the sidecar passphrase file.
func NewEncryptedFileStore(path, passphrase string) (*EncryptedFileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if passphrase == "" {
		var err error
		if passphrase, err = loadPassphrase(filepath.Join(dir, ".passphrase")); err != nil {
			return nil, fmt.Errorf("failed to get passphrase: %w", err)
		}
	}
	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

func (e *EncryptedFileStore) Save(s *Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	sessions, salt, err := e.read()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	sessions[s.Account] = *s
	return e.write(sessions, salt)
}

func (e *EncryptedFileStore) Load(account string) (*Session, error) {
	if account == "" {
		return nil, ErrInvalidCredentials
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	sessions, _, err := e.read()
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, err
	}
	s, ok := sessions[account]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &s, nil
}

func (e *EncryptedFileStore) List() ([]*Session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sessions, _, err := e.read()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out, nil
}

func (e *EncryptedFileStore) Delete(account string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sessions, salt, err := e.read()
	if errors.Is(err, os.ErrNotExist) {
		return ErrCredentialsNotFound
	}
	if err != nil {
		return err
	}
	if _, ok := sessions[account]; !ok {
		return ErrCredentialsNotFound
	}
	delete(sessions, account)
	if len(sessions) == 0 {
		return os.Remove(e.path)
	}
	return e.write(sessions, salt)
}

// read always returns a usable map, even alongside an error.
func (e *EncryptedFileStore) read() (map[string]Session, []byte, error) {
	sessions := make(map[string]Session)
	content, err := os.ReadFile(e.path)
	if err != nil {
		return sessions, nil, err
	}

	var env envelope
	if err := json.Unmarshal(content, &env); err != nil {
		return sessions, nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return sessions, nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Encrypted)
	if err != nil {
		return sessions, nil, fmt.Errorf("failed to decode session data: %w", err)
	}
	plain, err := open(sealed, e.key(salt))
	if err != nil {
		return sessions, nil, fmt.Errorf("failed to decrypt session file: %w", err)
	}
	if err := json.Unmarshal(plain, &sessions); err != nil {
		return sessions, nil, fmt.Errorf("failed to parse sessions: %w", err)
	}
	return sessions, salt, nil
}

func (e *EncryptedFileStore) write(sessions map[string]Session, salt []byte) error {
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}
	plain, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	sealed, err := seal(plain, e.key(salt))
	if err != nil {
		return fmt.Errorf("failed to encrypt sessions: %w", err)
	}
	content, err := json.MarshalIndent(envelope{
		Version:   fileFormat,
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(sealed),
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return os.Rename(tmp, e.path)
}

func (e *EncryptedFileStore) key(salt []byte) []byte {
	return pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
}

func loadPassphrase(file string) (string, error) {
	if pass := os.Getenv("IGEVENTS_PASSPHRASE"); pass != "" {
		return pass, nil
	}
	if content, err := os.ReadFile(file); err == nil && len(content) > 0 {
		return string(content), nil
	}
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	pass := base64.URLEncoding.EncodeToString(b)
	if err := os.WriteFile(file, []byte(pass), 0o600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return pass, nil
}

func seal(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func open(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
