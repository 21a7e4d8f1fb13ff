package entitlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"learnhub.org/internal/kvslot"
	"learnhub.org/internal/session"
)

var (
	student = session.Identity{ID: "student_001", Role: session.RoleStudent}
	teacher = session.Identity{ID: "teacher_001", Role: session.RoleTeacher}
	admin   = session.Identity{ID: "admin_001", Role: session.RoleAdmin}
)

func TestPurchaseGrantsAccess(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	ok, err := l.HasAccess(ctx, student, "python-essentials")
	if err != nil || ok {
		t.Fatalf("expected no access before purchase, got ok=%v err=%v", ok, err)
	}

	ent, owned, err := l.Purchase(ctx, student, "python-essentials", 4900)
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if owned {
		t.Fatal("first purchase reported already owned")
	}
	if ent.Status != StatusActive || ent.PricePaid != 4900 {
		t.Fatalf("unexpected entitlement: %+v", ent)
	}

	ok, err = l.HasAccess(ctx, student, "python-essentials")
	if err != nil || !ok {
		t.Fatalf("expected access after purchase, got ok=%v err=%v", ok, err)
	}
}

func TestPurchaseIsIdempotent(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	first, _, err := l.Purchase(ctx, student, "go-basics", 1000)
	if err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	second, owned, err := l.Purchase(ctx, student, "go-basics", 1000)
	if err != nil {
		t.Fatalf("second purchase: %v", err)
	}
	if !owned {
		t.Fatal("repurchase must report already owned")
	}
	if second.ID != first.ID {
		t.Fatalf("repurchase created a duplicate record: %s != %s", second.ID, first.ID)
	}

	all, err := l.Entitlements(ctx, student.ID)
	if err != nil {
		t.Fatalf("Entitlements: %v", err)
	}
	active := 0
	for _, e := range all {
		if e.Active() {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one active record, got %d", active)
	}
}

func TestAnonymousPurchaseFailsWithoutMutation(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	_, _, err := l.Purchase(ctx, session.Identity{}, "go-basics", 1000)
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if len(l.ents) != 0 {
		t.Fatal("anonymous purchase must not mutate the ledger")
	}
}

func TestTeacherAssignmentGrantsAccessWithoutPurchase(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	if err := l.Assign(ctx, Assignment{TeacherID: "teacher_001", CourseID: "python-essentials", Role: RoleInstructor}); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	ok, err := l.HasAccess(ctx, teacher, "python-essentials")
	if err != nil || !ok {
		t.Fatalf("assigned teacher must have access, got ok=%v err=%v", ok, err)
	}
	ok, _ = l.HasAccess(ctx, teacher, "another-course")
	if ok {
		t.Fatal("assignment must be scoped to its course")
	}
}

func TestAdminHasAccessEverywhere(t *testing.T) {
	l := NewInMemory()
	ok, err := l.HasAccess(context.Background(), admin, "any-course")
	if err != nil || !ok {
		t.Fatalf("admin must have access, got ok=%v err=%v", ok, err)
	}
}

func TestRepurchaseAfterRefundCreatesNewRecord(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewInMemory(WithClock(func() time.Time { return base }))
	ctx := context.Background()

	first, _, err := l.Purchase(ctx, student, "go-basics", 1000)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if err := l.SetStatus(ctx, student.ID, "go-basics", StatusRefunded); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if ok, _ := l.HasAccess(ctx, student, "go-basics"); ok {
		t.Fatal("refunded entitlement must not grant access")
	}

	second, owned, err := l.Purchase(ctx, student, "go-basics", 1200)
	if err != nil || owned {
		t.Fatalf("repurchase after refund: owned=%v err=%v", owned, err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a fresh record after refund")
	}
}

func TestPurchaseNotifiesSubscribers(t *testing.T) {
	l := NewInMemory()
	var events []Entitlement
	cancel := l.Subscribe(func(e Entitlement) { events = append(events, e) })
	defer cancel()

	if _, _, err := l.Purchase(context.Background(), student, "go-basics", 1000); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if len(events) != 1 || events[0].CourseID != "go-basics" {
		t.Fatalf("expected one purchase event, got %v", events)
	}

	// Idempotent replay must not re-notify.
	if _, _, err := l.Purchase(context.Background(), student, "go-basics", 1000); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("idempotent purchase re-notified: %d events", len(events))
	}
}

func TestCachePersistsWholesale(t *testing.T) {
	slot := kvslot.NewMemory()
	cache := NewCache(slot)
	cache.Record(Entitlement{ID: "e1", IdentityID: "u1", CourseID: "go-basics", Status: StatusActive})

	restored := NewCache(slot)
	if !restored.Owns("go-basics") {
		t.Fatal("expected purchase mirror to survive restart")
	}

	restored.Clear()
	if NewCache(slot).Owns("go-basics") {
		t.Fatal("expected cleared mirror to stay cleared")
	}
}
