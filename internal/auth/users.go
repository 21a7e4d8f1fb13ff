package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"learnhub.org/internal/ids"
	"learnhub.org/internal/session"
)

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// MinPasswordLength applies to registration only; existing hashes verify
// regardless.
const MinPasswordLength = 8

// User is an account record of the reference API.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         session.Role
	Status       string
	CreatedAt    time.Time
}

// Identity converts the account to the wire-level identity record.
func (u User) Identity() session.Identity {
	return session.Identity{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// UserStore manages account persistence.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	FindUser(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
}

// Registrar wraps a UserStore with validation and password hashing.
type Registrar struct {
	store UserStore
	now   func() time.Time
}

// RegistrarOption configures Registrar.
type RegistrarOption func(*Registrar)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) RegistrarOption {
	return func(r *Registrar) {
		if fn != nil {
			r.now = fn
		}
	}
}

func NewRegistrar(store UserStore, opts ...RegistrarOption) *Registrar {
	r := &Registrar{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates an active student account.
func (r *Registrar) Register(ctx context.Context, name, email, password string) (*User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:           ids.New(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         session.RoleStudent,
		Status:       UserStatusActive,
		CreatedAt:    r.now().UTC(),
	}
	if err := r.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate verifies credentials and returns the account.
func (r *Registrar) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrUnauthorized
	}
	u, err := r.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if u.Status != UserStatusActive {
		return nil, ErrUnauthorized
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return nil, ErrUnauthorized
	}
	return u, nil
}

// InMemoryUsers implements UserStore for tests and the reference server.
type InMemoryUsers struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
}

func NewInMemoryUsers() *InMemoryUsers {
	return &InMemoryUsers{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (s *InMemoryUsers) CreateUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return ErrAlreadyExists
	}
	s.byID[u.ID] = *u
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *InMemoryUsers) FindUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *InMemoryUsers) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.TrimSpace(strings.ToLower(email))]
	if !ok {
		return nil, ErrNotFound
	}
	u := s.byID[id]
	return &u, nil
}

var _ UserStore = (*InMemoryUsers)(nil)
