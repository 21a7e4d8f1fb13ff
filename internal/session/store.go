package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"learnhub.org/internal/kvslot"
	"learnhub.org/internal/obs"
)

const slotKey = "identity"

// Backend is the authentication surface of the companion API.
type Backend interface {
	Authenticate(ctx context.Context, email, password string) (Identity, error)
	Register(ctx context.Context, name, email, password string) (Identity, error)
	Logout(ctx context.Context) error
}

// Observer is invoked synchronously after every session state change.
type Observer func(current Identity, authenticated bool)

// Store owns the single current identity. At most one identity is current at
// a time; the slot persists it wholesale across restarts.
type Store struct {
	mu      sync.Mutex
	api     Backend
	slot    kvslot.Slot
	now     func() time.Time
	current Identity

	subMu   sync.Mutex
	subs    map[int]Observer
	nextSub int
}

// Option configures Store behavior.
type Option func(*Store)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewStore constructs a Store and restores any persisted identity. A slot
// record that fails to decode is discarded and the store starts anonymous.
func NewStore(api Backend, slot kvslot.Slot, opts ...Option) *Store {
	s := &Store{
		api:  api,
		slot: slot,
		now:  time.Now,
		subs: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(s)
	}
	if slot != nil {
		if data, ok, err := slot.Load(slotKey); err == nil && ok {
			var id Identity
			if json.Unmarshal(data, &id) == nil && !id.IsZero() {
				s.current = id
			} else {
				_ = slot.Delete(slotKey)
			}
		}
	}
	return s
}

// Subscribe registers an observer and returns its removal function. Observers
// are called before the mutating operation returns, so dependent views see a
// consistent state.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Current returns the current identity; the zero value means anonymous.
func (s *Store) Current() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// IsAuthenticated reports whether an identity is current.
func (s *Store) IsAuthenticated() bool { return !s.Current().IsZero() }

// Login authenticates against the backend and installs the returned identity.
// Any failure clears a stale identity: a user who just failed to log in must
// not be left looking signed in.
func (s *Store) Login(ctx context.Context, email, password string) (Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		s.clear()
		return Identity{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	id, err := s.api.Authenticate(ctx, email, password)
	if err != nil {
		s.clear()
		return Identity{}, err
	}
	s.install(id)
	return id, nil
}

// Register creates an account and signs it in; the contract mirrors Login.
func (s *Store) Register(ctx context.Context, name, email, password string) (Identity, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" || email == "" || password == "" {
		s.clear()
		return Identity{}, fmt.Errorf("%w: name, email and password are required", ErrInvalidInput)
	}
	id, err := s.api.Register(ctx, name, email, password)
	if err != nil {
		s.clear()
		return Identity{}, err
	}
	s.install(id)
	return id, nil
}

// Logout transitions to anonymous unconditionally. The backend call is best
// effort: a transient network failure must never keep a user signed in.
func (s *Store) Logout(ctx context.Context) {
	s.clear()
	if err := s.api.Logout(ctx); err != nil {
		obs.LogRequest(map[string]any{
			"ts":    s.now().UTC().Format(time.RFC3339Nano),
			"level": "warn",
			"msg":   "backend logout failed",
			"error": err.Error(),
		})
	}
}

func (s *Store) install(id Identity) {
	s.mu.Lock()
	s.current = id
	s.persistLocked()
	s.mu.Unlock()
	s.notify(id, true)
}

func (s *Store) clear() {
	s.mu.Lock()
	wasAuthenticated := !s.current.IsZero()
	s.current = Identity{}
	if s.slot != nil {
		_ = s.slot.Delete(slotKey)
	}
	s.mu.Unlock()
	if wasAuthenticated {
		s.notify(Identity{}, false)
	}
}

// persistLocked writes the whole identity record in one atomic store so a
// reader never observes a partially updated slot.
func (s *Store) persistLocked() {
	if s.slot == nil || s.current.IsZero() {
		return
	}
	data, err := json.Marshal(s.current)
	if err != nil {
		return
	}
	_ = s.slot.Store(slotKey, data)
}

func (s *Store) notify(id Identity, authenticated bool) {
	s.subMu.Lock()
	observers := make([]Observer, 0, len(s.subs))
	for _, fn := range s.subs {
		observers = append(observers, fn)
	}
	s.subMu.Unlock()
	for _, fn := range observers {
		fn(id, authenticated)
	}
}
