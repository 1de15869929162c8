package cli

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	keyringService  = "dashctl"
	credentialsFile = "credentials.json"
	credentialsMode = 0o600

	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
)

// ErrNoCredential is returned when a credential has not been stored.
var ErrNoCredential = errors.New("credential not found")

// TokenStore keeps API tokens between invocations.
type TokenStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// NewTokenStore prefers the OS keychain and falls back to a 0600 file in dir
// when no keychain is reachable.
func NewTokenStore(dir string) TokenStore {
	ks := keychainStore{}
	const probe = "__dashctl_probe__"
	if err := ks.Set(probe, "ok"); err != nil {
		return newFileStore(dir)
	}
	_ = ks.Delete(probe)
	return ks
}

type keychainStore struct{}

func (keychainStore) Get(key string) (string, error) {
	val, err := keyring.Get(keyringService, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoCredential
	}
	return val, err
}

func (keychainStore) Set(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

func (keychainStore) Delete(key string) error {
	err := keyring.Delete(keyringService, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

type fileStore struct {
	mu   sync.Mutex
	path string
}

func newFileStore(dir string) *fileStore {
	return &fileStore{path: filepath.Join(dir, credentialsFile)}
}

func (f *fileStore) Get(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	if err != nil {
		return "", err
	}
	val, ok := data[key]
	if !ok {
		return "", ErrNoCredential
	}
	return val, nil
}

func (f *fileStore) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	if err != nil {
		return err
	}
	data[key] = value
	return f.save(data)
}

func (f *fileStore) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := data[key]; !ok {
		return nil
	}
	delete(data, key)
	return f.save(data)
}

func (f *fileStore) load() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, err
	}
	var data map[string]string
	if err := json.Unmarshal(raw, &data); err != nil || data == nil {
		return make(map[string]string), nil
	}
	return data, nil
}

func (f *fileStore) save(data map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, raw, credentialsMode)
}
