package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Keys under which the session is persisted.
const (
	TokenKey = "token"
	UserKey  = "user"
)

// ErrNotFound is returned by Store.Get when the key has no value.
var ErrNotFound = errors.New("session: key not found")

// Store is a durable key-value holder. Implementations must be safe for
// concurrent use. Values never expire on their own.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Session is the credential state shared by every request the client makes:
// an optional bearer token and the last-known user profile.
type Session struct {
	store Store
}

// New wraps a store.
func New(store Store) *Session {
	return &Session{store: store}
}

// Token returns the current token, or "" when there is none.
func (s *Session) Token(ctx context.Context) (string, error) {
	token, err := s.store.Get(ctx, TokenKey)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session: read token: %w", err)
	}
	return token, nil
}

// SetToken stores the token. An empty token clears it.
func (s *Session) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return s.store.Delete(ctx, TokenKey)
	}
	if err := s.store.Set(ctx, TokenKey, token); err != nil {
		return fmt.Errorf("session: write token: %w", err)
	}
	return nil
}

// User decodes the cached profile into dst. It reports false when no
// profile is cached.
func (s *Session) User(ctx context.Context, dst any) (bool, error) {
	raw, err := s.store.Get(ctx, UserKey)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("session: read user: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("session: decode user: %w", err)
	}
	return true, nil
}

// SetUser caches the profile as JSON.
func (s *Session) SetUser(ctx context.Context, user any) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("session: encode user: %w", err)
	}
	if err := s.store.Set(ctx, UserKey, string(data)); err != nil {
		return fmt.Errorf("session: write user: %w", err)
	}
	return nil
}

// Clear removes the token and the cached profile.
func (s *Session) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, TokenKey, UserKey); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

// Close releases the underlying store.
func (s *Session) Close() error {
	return s.store.Close()
}
