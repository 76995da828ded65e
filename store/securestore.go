package store

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/plexcash/go-session"
)

// SecureFileStore is an encrypted KeyValueStore for bearer credentials on
// hosts without an OS keychain. The whole store is one XChaCha20-Poly1305
// sealed JSON document: tampering with any byte fails the open, not just
// one entry.
type SecureFileStore struct {
	mu   sync.Mutex
	path string
	aead cipher.AEAD
}

var _ session.KeyValueStore = (*SecureFileStore)(nil)

// NewSecureFileStore opens or creates the store at path. The key must be
// chacha20poly1305.KeySize bytes; derive it from the platform secret, never
// store it next to the file.
func NewSecureFileStore(path string, key []byte) (*SecureFileStore, error) {
	if path == "" {
		return nil, goerrors.New("secure store requires a path", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "secure store key rejected")
	}

	return &SecureFileStore{path: path, aead: aead}, nil
}

func (s *SecureFileStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return "", err
	}

	val, ok := data[key]
	if !ok {
		return "", session.ErrKeyNotFound
	}
	return val, nil
}

func (s *SecureFileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}

	data[key] = value
	return s.persist(data)
}

func (s *SecureFileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}

	if _, ok := data[key]; !ok {
		return session.ErrKeyNotFound
	}

	delete(data, key)
	return s.persist(data)
}

func (s *SecureFileStore) load() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read secure store")
	}

	if len(raw) < s.aead.NonceSize() {
		return nil, goerrors.New("secure store is truncated", goerrors.CategoryInternal).
			WithCode(goerrors.CodeInternal)
	}

	nonce, sealed := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "secure store failed authentication")
	}

	data := map[string]string{}
	if err := json.Unmarshal(plain, &data); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "secure store payload is corrupt")
	}
	return data, nil
}

// persist seals and writes atomically: temp file in the same directory,
// then rename over the live file.
func (s *SecureFileStore) persist(data map[string]string) error {
	plain, err := json.Marshal(data)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode secure store")
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate nonce")
	}

	sealed := s.aead.Seal(nonce, nonce, plain, nil)

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to stage secure store write")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to write secure store")
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to restrict secure store permissions")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to flush secure store")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to commit secure store")
	}
	return nil
}
