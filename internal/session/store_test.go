package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"learnhub.org/internal/kvslot"
)

type fakeBackend struct {
	identities map[string]Identity // email -> identity
	password   string
	netErr     error
	logoutErr  error
	logoutCall int
}

func (f *fakeBackend) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	if f.netErr != nil {
		return Identity{}, f.netErr
	}
	id, ok := f.identities[email]
	if !ok || password != f.password {
		return Identity{}, ErrBadCredentials
	}
	return id, nil
}

func (f *fakeBackend) Register(ctx context.Context, name, email, password string) (Identity, error) {
	if f.netErr != nil {
		return Identity{}, f.netErr
	}
	id := Identity{ID: "u-" + email, Name: name, Email: email, Role: RoleStudent, CreatedAt: time.Now().UTC()}
	f.identities[email] = id
	f.password = password
	return id, nil
}

func (f *fakeBackend) Logout(ctx context.Context) error {
	f.logoutCall++
	return f.logoutErr
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		identities: map[string]Identity{
			"ada@example.com": {ID: "u1", Name: "Ada", Email: "ada@example.com", Role: RoleStudent, CreatedAt: time.Now().UTC()},
		},
		password: "correct-horse",
	}
}

func TestLoginSuccessNotifiesBeforeReturn(t *testing.T) {
	api := newFakeBackend()
	store := NewStore(api, kvslot.NewMemory())

	var seen []bool
	store.Subscribe(func(id Identity, authenticated bool) {
		seen = append(seen, authenticated)
	})

	id, err := store.Login(context.Background(), "ada@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if id.ID != "u1" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if !store.IsAuthenticated() {
		t.Fatal("expected authenticated store")
	}
	if len(seen) != 1 || !seen[0] {
		t.Fatalf("expected one authenticated notification, got %v", seen)
	}
}

func TestLoginFailureClearsStaleIdentity(t *testing.T) {
	api := newFakeBackend()
	store := NewStore(api, kvslot.NewMemory())

	if _, err := store.Login(context.Background(), "ada@example.com", "correct-horse"); err != nil {
		t.Fatalf("seed login: %v", err)
	}

	_, err := store.Login(context.Background(), "ada@example.com", "wrong")
	if !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
	if store.IsAuthenticated() {
		t.Fatal("failed login must clear the previous identity")
	}
}

func TestLoginReplacesCurrentIdentity(t *testing.T) {
	api := newFakeBackend()
	api.identities["bob@example.com"] = Identity{ID: "u2", Name: "Bob", Email: "bob@example.com", Role: RoleTeacher}
	store := NewStore(api, kvslot.NewMemory())

	if _, err := store.Login(context.Background(), "ada@example.com", "correct-horse"); err != nil {
		t.Fatalf("first login: %v", err)
	}
	if _, err := store.Login(context.Background(), "bob@example.com", "correct-horse"); err != nil {
		t.Fatalf("second login: %v", err)
	}
	if got := store.Current().ID; got != "u2" {
		t.Fatalf("expected replaced identity u2, got %s", got)
	}
}

func TestLogoutSucceedsLocallyWhenBackendFails(t *testing.T) {
	api := newFakeBackend()
	api.logoutErr = errors.New("dial tcp: i/o timeout")
	store := NewStore(api, kvslot.NewMemory())

	if _, err := store.Login(context.Background(), "ada@example.com", "correct-horse"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	var sawAnonymous bool
	store.Subscribe(func(id Identity, authenticated bool) {
		if !authenticated && id.IsZero() {
			sawAnonymous = true
		}
	})

	store.Logout(context.Background())
	if store.IsAuthenticated() {
		t.Fatal("logout must always succeed locally")
	}
	if !sawAnonymous {
		t.Fatal("expected anonymous notification")
	}
	if api.logoutCall != 1 {
		t.Fatalf("expected one backend logout attempt, got %d", api.logoutCall)
	}
}

func TestPersistedIdentitySurvivesRestart(t *testing.T) {
	api := newFakeBackend()
	slot := kvslot.NewMemory()

	store := NewStore(api, slot)
	if _, err := store.Login(context.Background(), "ada@example.com", "correct-horse"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	restarted := NewStore(api, slot)
	if got := restarted.Current(); got.ID != "u1" {
		t.Fatalf("expected restored identity u1, got %+v", got)
	}
}

func TestCorruptSlotLoadsAnonymous(t *testing.T) {
	slot := kvslot.NewMemory()
	if err := slot.Store("identity", []byte("{not json")); err != nil {
		t.Fatalf("seed slot: %v", err)
	}

	store := NewStore(newFakeBackend(), slot)
	if store.IsAuthenticated() {
		t.Fatal("corrupt slot must load as anonymous")
	}
	if _, ok, _ := slot.Load("identity"); ok {
		t.Fatal("corrupt record should be discarded")
	}
}

func TestRegisterSignsIn(t *testing.T) {
	api := newFakeBackend()
	store := NewStore(api, kvslot.NewMemory())

	id, err := store.Register(context.Background(), "Grace", "grace@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if id.IsZero() || store.Current().Email != "grace@example.com" {
		t.Fatalf("expected registered identity current, got %+v", store.Current())
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	api := newFakeBackend()
	store := NewStore(api, kvslot.NewMemory())

	calls := 0
	cancel := store.Subscribe(func(Identity, bool) { calls++ })
	cancel()

	if _, err := store.Login(context.Background(), "ada@example.com", "correct-horse"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no notifications after unsubscribe, got %d", calls)
	}
}
