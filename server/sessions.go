package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/marksweep/vm"
)

// ErrSessionNotFound is returned for an unknown or closed session id.
var ErrSessionNotFound = errors.New("server: session not found")

// Session is one remote VM. All access goes through its worker.
type Session struct {
	ID      string
	Name    string
	Created time.Time

	worker *VMWorker
}

// SessionStore manages heap sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	newVM    func(id string) *vm.VM
}

// NewSessionStore creates a store that builds each session's VM with newVM.
func NewSessionStore(newVM func(id string) *vm.VM) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		newVM:    newVM,
	}
}

// Create creates a new session with an optional name.
func (s *SessionStore) Create(name string) *Session {
	id := uuid.NewString()

	session := &Session{
		ID:      id,
		Name:    name,
		Created: time.Now(),
		worker:  NewVMWorker(s.newVM(id)),
	}

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	return session
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return session, nil
}

// Destroy removes a session, empties its heap and stops its worker.
func (s *SessionStore) Destroy(ctx context.Context, id string) error {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	defer session.worker.Stop()

	_, err := session.worker.Do(ctx, func(v *vm.VM) any {
		v.Close()
		return nil
	})
	return err
}

// DestroyAll destroys every session, returning the first error.
func (s *SessionStore) DestroyAll(ctx context.Context) error {
	var first error
	for _, id := range s.IDs() {
		if err := s.Destroy(ctx, id); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// IDs returns the ids of all open sessions, sorted.
func (s *SessionStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of open sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
