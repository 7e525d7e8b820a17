// Package session holds the authenticated user and bearer token shared by
// every screen and command.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hylla/kanri/internal/domain"
)

// ErrNoSession reports that no persisted session exists.
var ErrNoSession = errors.New("no session")

// Data is the persisted session payload.
type Data struct {
	Token string
	User  domain.User
}

// Store persists session data between runs.
type Store interface {
	LoadSession(context.Context) (Data, error)
	SaveSession(context.Context, Data) error
	ClearSession(context.Context) error
}

// Session is the single injected owner of authentication state.
type Session struct {
	mu    sync.RWMutex
	data  Data
	store Store
}

// New constructs a session over store. A nil store keeps state in memory only.
func New(store Store) *Session {
	return &Session{store: store}
}

// Restore loads persisted state. A missing session is not an error.
func (s *Session) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	data, err := s.store.LoadSession(ctx)
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

// Token returns the bearer token, empty when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Token
}

// User returns the signed-in user.
func (s *Session) User() domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.User
}

// Authenticated reports whether a token is held.
func (s *Session) Authenticated() bool {
	return strings.TrimSpace(s.Token()) != ""
}

// Update replaces and persists the session data.
func (s *Session) Update(ctx context.Context, data Data) error {
	if s.store != nil {
		if err := s.store.SaveSession(ctx, data); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

// UpdateUser replaces the stored user profile and keeps the token.
func (s *Session) UpdateUser(ctx context.Context, user domain.User) error {
	s.mu.RLock()
	data := s.data
	s.mu.RUnlock()
	data.User = user
	return s.Update(ctx, data)
}

// Clear signs out. In-memory state is dropped even when the store fails.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.data = Data{}
	s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	if err := s.store.ClearSession(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	data *Data
}

// LoadSession implements Store.
func (m *MemoryStore) LoadSession(context.Context) (Data, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return Data{}, ErrNoSession
	}
	return *m.data, nil
}

// SaveSession implements Store.
func (m *MemoryStore) SaveSession(_ context.Context, data Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = &data
	return nil
}

// ClearSession implements Store.
func (m *MemoryStore) ClearSession(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}
