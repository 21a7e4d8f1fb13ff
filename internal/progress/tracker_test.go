package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"learnhub.org/internal/session"
)

var learner = session.Identity{ID: "u1", Role: session.RoleStudent}

type fakeCompletionAPI struct {
	markErr    error
	unmarkErr  error
	marked     []string
	unmarked   []string
	markCalls  int
	unmarkCall int
}

func (f *fakeCompletionAPI) MarkLessonComplete(ctx context.Context, lessonID string) error {
	f.markCalls++
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, lessonID)
	return nil
}

func (f *fakeCompletionAPI) UnmarkLessonComplete(ctx context.Context, lessonID string) error {
	f.unmarkCall++
	if f.unmarkErr != nil {
		return f.unmarkErr
	}
	f.unmarked = append(f.unmarked, lessonID)
	return nil
}

// manualTimer collects scheduled countdowns and fires them on demand.
type manualTimer struct {
	pending []func()
	stopped int
}

func (m *manualTimer) schedule(d time.Duration, fn func()) func() {
	idx := len(m.pending)
	m.pending = append(m.pending, fn)
	return func() {
		m.pending[idx] = nil
		m.stopped++
	}
}

func (m *manualTimer) fireAll() {
	for _, fn := range m.pending {
		if fn != nil {
			fn()
		}
	}
	m.pending = nil
}

func newTestTracker(api Backend, timers *manualTimer) *Tracker {
	return NewTracker(api,
		WithTimerFunc(timers.schedule),
		WithTrackerClock(func() time.Time {
			return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		}),
	)
}

func TestDwellRunToCompletionMarksLesson(t *testing.T) {
	api := &fakeCompletionAPI{}
	timers := &manualTimer{}
	tr := newTestTracker(api, timers)

	if err := tr.StartDwell(learner, "lesson-1", 30); err != nil {
		t.Fatalf("StartDwell: %v", err)
	}
	if !tr.DwellActive(learner, "lesson-1") {
		t.Fatal("expected active countdown")
	}
	if tr.Completed(learner, "lesson-1").Completed {
		t.Fatal("lesson completed before countdown elapsed")
	}

	timers.fireAll()

	rec := tr.Completed(learner, "lesson-1")
	if !rec.Completed || rec.CompletedAt.IsZero() {
		t.Fatalf("expected completion after countdown, got %+v", rec)
	}
	if tr.DwellActive(learner, "lesson-1") {
		t.Fatal("countdown should be cleared after expiry")
	}
}

func TestDwellStartIsIdempotent(t *testing.T) {
	api := &fakeCompletionAPI{}
	timers := &manualTimer{}
	tr := newTestTracker(api, timers)

	_ = tr.StartDwell(learner, "lesson-1", 30)
	_ = tr.StartDwell(learner, "lesson-1", 30)

	if len(timers.pending) != 1 {
		t.Fatalf("second start must be a no-op, got %d countdowns", len(timers.pending))
	}
}

func TestPauseDiscardsProgressEntirely(t *testing.T) {
	api := &fakeCompletionAPI{}
	timers := &manualTimer{}
	tr := newTestTracker(api, timers)

	_ = tr.StartDwell(learner, "lesson-1", 30)
	tr.PauseDwell(learner, "lesson-1")

	if timers.stopped != 1 {
		t.Fatalf("expected one stopped countdown, got %d", timers.stopped)
	}
	timers.fireAll()
	if tr.Completed(learner, "lesson-1").Completed {
		t.Fatal("paused countdown must not complete the lesson")
	}

	// A restart schedules a full new countdown; no partial credit is banked.
	_ = tr.StartDwell(learner, "lesson-1", 30)
	if len(timers.pending) != 1 {
		t.Fatalf("expected a fresh countdown after restart, got %d", len(timers.pending))
	}
	timers.fireAll()
	if !tr.Completed(learner, "lesson-1").Completed {
		t.Fatal("full restarted countdown must complete the lesson")
	}
}

func TestMarkCompleteBackendFailureLeavesFlagUnset(t *testing.T) {
	api := &fakeCompletionAPI{markErr: errors.New("dial tcp: connection refused")}
	timers := &manualTimer{}
	tr := newTestTracker(api, timers)

	err := tr.MarkComplete(context.Background(), learner, "lesson-1")
	if err == nil {
		t.Fatal("expected backend error to propagate")
	}
	if tr.Completed(learner, "lesson-1").Completed {
		t.Fatal("no optimistic update: flag must stay unset on backend failure")
	}
	if api.markCalls != 1 {
		t.Fatalf("expected exactly one attempt (no automatic retry), got %d", api.markCalls)
	}
}

func TestDwellExpiryBackendFailureSurfacesUpdateError(t *testing.T) {
	api := &fakeCompletionAPI{markErr: errors.New("boom")}
	timers := &manualTimer{}
	tr := newTestTracker(api, timers)

	var updates []Update
	tr.Subscribe(func(u Update) { updates = append(updates, u) })

	_ = tr.StartDwell(learner, "lesson-1", 10)
	timers.fireAll()

	if tr.Completed(learner, "lesson-1").Completed {
		t.Fatal("flag must stay unset when the expiry mark fails")
	}
	if len(updates) != 1 || updates[0].Err == nil {
		t.Fatalf("expected one error update, got %v", updates)
	}
}

func TestUnmarkCompleteSymmetry(t *testing.T) {
	api := &fakeCompletionAPI{}
	timers := &manualTimer{}
	tr := newTestTracker(api, timers)

	if err := tr.MarkComplete(context.Background(), learner, "lesson-1"); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}
	if err := tr.UnmarkComplete(context.Background(), learner, "lesson-1"); err != nil {
		t.Fatalf("UnmarkComplete: %v", err)
	}
	if tr.Completed(learner, "lesson-1").Completed {
		t.Fatal("expected flag cleared after unmark")
	}

	api.unmarkErr = errors.New("boom")
	_ = tr.MarkComplete(context.Background(), learner, "lesson-2")
	if err := tr.UnmarkComplete(context.Background(), learner, "lesson-2"); err == nil {
		t.Fatal("expected unmark error to propagate")
	}
	if !tr.Completed(learner, "lesson-2").Completed {
		t.Fatal("failed unmark must leave the flag set")
	}
}

func TestAnonymousCallsRejected(t *testing.T) {
	tr := newTestTracker(&fakeCompletionAPI{}, &manualTimer{})
	anon := session.Identity{}

	if err := tr.StartDwell(anon, "lesson-1", 10); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("StartDwell: expected ErrNotAuthenticated, got %v", err)
	}
	if err := tr.MarkComplete(context.Background(), anon, "lesson-1"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("MarkComplete: expected ErrNotAuthenticated, got %v", err)
	}
}

func TestPercent(t *testing.T) {
	cases := []struct {
		completed, total, want int
	}{
		{0, 0, 0},
		{3, 0, 0},
		{0, 5, 0},
		{2, 5, 40},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13}, // 12.5 rounds up
		{5, 5, 100},
	}
	for _, tc := range cases {
		if got := Percent(tc.completed, tc.total); got != tc.want {
			t.Fatalf("Percent(%d, %d) = %d, want %d", tc.completed, tc.total, got, tc.want)
		}
	}
}

func TestCourseSummary(t *testing.T) {
	api := &fakeCompletionAPI{}
	tr := newTestTracker(api, &manualTimer{})
	lessons := []string{"l1", "l2", "l3", "l4", "l5"}

	if got := tr.CourseSummary(learner, lessons); got.Percent != 0 {
		t.Fatalf("expected 0%% before any completion, got %d%%", got.Percent)
	}

	_ = tr.MarkComplete(context.Background(), learner, "l1")
	_ = tr.MarkComplete(context.Background(), learner, "l4")

	got := tr.CourseSummary(learner, lessons)
	if got.Completed != 2 || got.Total != 5 || got.Percent != 40 {
		t.Fatalf("unexpected summary: %+v", got)
	}
}
