package entitlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"learnhub.org/internal/ids"
	"learnhub.org/internal/session"
)

// Ledger defines entitlement operations.
type Ledger interface {
	// HasAccess is true when the identity is an admin, an assigned teacher of
	// the course, or holds an active entitlement for it.
	HasAccess(ctx context.Context, identity session.Identity, courseID string) (bool, error)
	// Purchase is idempotent: an already-active entitlement is returned with
	// alreadyOwned=true instead of creating a duplicate record.
	Purchase(ctx context.Context, identity session.Identity, courseID string, price int64) (ent Entitlement, alreadyOwned bool, err error)
	Entitlements(ctx context.Context, identityID string) ([]Entitlement, error)
	SetStatus(ctx context.Context, identityID, courseID string, status Status) error
	Assign(ctx context.Context, a Assignment) error
	Assignments(ctx context.Context, teacherID string) ([]Assignment, error)
}

type pairKey struct {
	identityID string
	courseID   string
}

// InMemory implements Ledger with in-process concurrency safety.
type InMemory struct {
	mu      sync.RWMutex
	ents    map[pairKey][]Entitlement
	assigns map[pairKey]Assignment
	now     func() time.Time

	subMu   sync.Mutex
	subs    map[int]func(Entitlement)
	nextSub int
}

// InMemoryOption configures InMemory.
type InMemoryOption func(*InMemory)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) InMemoryOption {
	return func(l *InMemory) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewInMemory creates an empty ledger.
func NewInMemory(opts ...InMemoryOption) *InMemory {
	l := &InMemory{
		ents:    make(map[pairKey][]Entitlement),
		assigns: make(map[pairKey]Assignment),
		now:     time.Now,
		subs:    make(map[int]func(Entitlement)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Subscribe registers an observer invoked synchronously after each new
// entitlement is recorded, so dependent views reflect access immediately.
func (l *InMemory) Subscribe(fn func(Entitlement)) (unsubscribe func()) {
	l.subMu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	l.subMu.Unlock()
	return func() {
		l.subMu.Lock()
		delete(l.subs, id)
		l.subMu.Unlock()
	}
}

func (l *InMemory) HasAccess(ctx context.Context, identity session.Identity, courseID string) (bool, error) {
	if identity.IsZero() {
		return false, nil
	}
	if courseID == "" {
		return false, fmt.Errorf("%w: course id is required", ErrInvalidInput)
	}
	if identity.Role == session.RoleAdmin {
		return true, nil
	}
	key := pairKey{identity.ID, courseID}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.assigns[key]; ok {
		return true, nil
	}
	for _, e := range l.ents[key] {
		if e.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (l *InMemory) Purchase(ctx context.Context, identity session.Identity, courseID string, price int64) (Entitlement, bool, error) {
	if identity.IsZero() {
		return Entitlement{}, false, ErrNotAuthenticated
	}
	if courseID == "" {
		return Entitlement{}, false, fmt.Errorf("%w: course id is required", ErrInvalidInput)
	}
	if price < 0 {
		return Entitlement{}, false, fmt.Errorf("%w: price must be >= 0", ErrInvalidInput)
	}

	key := pairKey{identity.ID, courseID}
	l.mu.Lock()
	for _, e := range l.ents[key] {
		if e.Active() {
			l.mu.Unlock()
			return e, true, nil
		}
	}
	ent := Entitlement{
		ID:         ids.New(),
		IdentityID: identity.ID,
		CourseID:   courseID,
		AcquiredAt: l.now().UTC(),
		PricePaid:  price,
		Status:     StatusActive,
	}
	l.ents[key] = append(l.ents[key], ent)
	l.mu.Unlock()

	l.notify(ent)
	return ent, false, nil
}

func (l *InMemory) Entitlements(ctx context.Context, identityID string) ([]Entitlement, error) {
	if identityID == "" {
		return nil, fmt.Errorf("%w: identity id is required", ErrInvalidInput)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entitlement
	for key, list := range l.ents {
		if key.identityID != identityID {
			continue
		}
		out = append(out, list...)
	}
	return out, nil
}

func (l *InMemory) SetStatus(ctx context.Context, identityID, courseID string, status Status) error {
	switch status {
	case StatusActive, StatusExpired, StatusRefunded:
	default:
		return fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}
	key := pairKey{identityID, courseID}
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.ents[key]
	for i := range list {
		if list[i].Active() {
			list[i].Status = status
			return nil
		}
	}
	return ErrNotFound
}

func (l *InMemory) Assign(ctx context.Context, a Assignment) error {
	if a.TeacherID == "" || a.CourseID == "" {
		return fmt.Errorf("%w: teacher id and course id are required", ErrInvalidInput)
	}
	if a.Role == "" {
		a.Role = RoleInstructor
	}
	l.mu.Lock()
	l.assigns[pairKey{a.TeacherID, a.CourseID}] = a
	l.mu.Unlock()
	return nil
}

func (l *InMemory) Assignments(ctx context.Context, teacherID string) ([]Assignment, error) {
	if teacherID == "" {
		return nil, fmt.Errorf("%w: teacher id is required", ErrInvalidInput)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Assignment
	for key, a := range l.assigns {
		if key.identityID == teacherID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (l *InMemory) notify(ent Entitlement) {
	l.subMu.Lock()
	observers := make([]func(Entitlement), 0, len(l.subs))
	for _, fn := range l.subs {
		observers = append(observers, fn)
	}
	l.subMu.Unlock()
	for _, fn := range observers {
		fn(ent)
	}
}

var _ Ledger = (*InMemory)(nil)
