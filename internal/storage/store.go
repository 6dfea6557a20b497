package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/rs/zerolog"
)

// Logical keys of the persisted collections.
const (
	UsersKey       = "users"
	ExpensesKey    = "expenses"
	CurrentUserKey = "currentUser"
	IsLoggedInKey  = "isLoggedIn"
)

// SessionKeys returns the keys holding the session of a browser profile.
// The empty profile uses the bare keys.
func SessionKeys(profile string) (userKey, flagKey string) {
	if profile == "" {
		return CurrentUserKey, IsLoggedInKey
	}
	prefix := "profiles/" + profile + "/"
	return prefix + CurrentUserKey, prefix + IsLoggedInKey
}

// UpdateFunc receives the current bytes of a key and returns the bytes to store.
type UpdateFunc func(current []byte, found bool) ([]byte, error)

// Backend is the durable byte substrate under a Store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Update is an atomic read-modify-write of one key.
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// Store reads and writes JSON values on top of a Backend.
//
// Unreadable values are treated as absent: the key is logged, recorded in
// Warnings, and the caller sees an empty collection.
type Store struct {
	backend Backend
	log     zerolog.Logger

	mu       sync.Mutex
	warnings []string
}

// NewStore creates a Store over backend.
func NewStore(backend Backend, log zerolog.Logger) *Store {
	return &Store{backend: backend, log: log}
}

// Load decodes the value stored under key into v, which must be a pointer.
// It reports false when the key is absent or unreadable.
func (s *Store) Load(ctx context.Context, key string, v any) (bool, error) {
	data, found, err := s.backend.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return s.decode(key, data, v), nil
}

// Save encodes v and stores it under key.
func (s *Store) Save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.backend.Put(ctx, key, data)
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Update loads key into v, calls fn, and stores v again, all as one atomic
// step of the backend. When fn returns an error nothing is written and the
// error is returned unchanged.
func (s *Store) Update(ctx context.Context, key string, v any, fn func(found bool) error) error {
	return s.backend.Update(ctx, key, func(current []byte, found bool) ([]byte, error) {
		if found {
			found = s.decode(key, current, v)
		}
		if err := fn(found); err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		return data, nil
	})
}

// Warnings lists the problems found while reading persisted state.
func (s *Store) Warnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.warnings...)
}

func (s *Store) decode(key string, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		reflect.ValueOf(v).Elem().SetZero()
		s.log.Warn().Err(err).Str("key", key).Msg("ignoring unreadable persisted value")
		s.mu.Lock()
		s.warnings = append(s.warnings, fmt.Sprintf("%s: %v", key, err))
		s.mu.Unlock()
		return false
	}
	return true
}
