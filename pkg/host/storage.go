// Package host provides host collaborators for running the Rally library
// outside a browser: durable storage in the OS keyring and a tab manager
// backed by the system browser.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the keyring service name values are stored under.
const DefaultKeyringService = "rally"

// KeyringStorage stores JSON values in the OS keyring, one entry per key.
type KeyringStorage struct {
	Service string

	// Serializes SetIfAbsent within this process. The keyring itself has
	// no compare-and-set.
	mu sync.Mutex
}

// NewKeyringStorage returns a storage for service, or for
// DefaultKeyringService when service is empty.
func NewKeyringStorage(service string) *KeyringStorage {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringStorage{Service: service}
}

func (s *KeyringStorage) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	val, err := keyring.Get(s.Service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s from keyring: %w", key, err)
	}
	if !json.Valid([]byte(val)) {
		return nil, false, fmt.Errorf("keyring entry %s is not valid JSON", key)
	}
	return json.RawMessage(val), true, nil
}

func (s *KeyringStorage) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := keyring.Set(s.Service, key, string(raw)); err != nil {
		return fmt.Errorf("failed to write %s to keyring: %w", key, err)
	}
	return nil
}

func (s *KeyringStorage) SetIfAbsent(ctx context.Context, key string, value any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found, err := s.Get(ctx, key); err != nil || found {
		return false, err
	}
	if err := s.Set(ctx, key, value); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes key. Removing a missing key is not an error.
func (s *KeyringStorage) Delete(ctx context.Context, key string) error {
	err := keyring.Delete(s.Service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete %s from keyring: %w", key, err)
	}
	return nil
}

// MemoryStorage keeps values in memory. It is used in developer mode and
// tests.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]json.RawMessage
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]json.RawMessage)}
}

func (s *MemoryStorage) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStorage) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = raw
	return nil
}

func (s *MemoryStorage) SetIfAbsent(ctx context.Context, key string, value any) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = raw
	return true, nil
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
