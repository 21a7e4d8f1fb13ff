package progress

import (
	"context"
	"sync"
	"time"

	"learnhub.org/internal/session"
)

// Backend is the completion surface of the companion API.
type Backend interface {
	MarkLessonComplete(ctx context.Context, lessonID string) error
	UnmarkLessonComplete(ctx context.Context, lessonID string) error
}

// Update describes a completion change, consumed by course-level aggregation.
// Err is set when a dwell timer expired but the backend rejected the mark;
// the local flag stays unset in that case.
type Update struct {
	IdentityID string
	LessonID   string
	Completed  bool
	Err        error
}

// TimerFunc schedules fn after d and returns a stop function. Injectable so
// tests can fire timers deterministically.
type TimerFunc func(d time.Duration, fn func()) (stop func())

func defaultTimer(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Tracker gates and records lesson completion for the current identity.
// There is no optimistic update: the local flag changes only after the
// backend acknowledged the change, so the UI never shows a completed state
// that silently failed to persist.
type Tracker struct {
	mu      sync.Mutex
	api     Backend
	now     func() time.Time
	timer   TimerFunc
	records map[recordKey]Record
	dwells  map[recordKey]func() // active countdown stoppers

	subMu   sync.Mutex
	subs    map[int]func(Update)
	nextSub int
}

// TrackerOption configures Tracker.
type TrackerOption func(*Tracker)

// WithTrackerClock overrides the time source.
func WithTrackerClock(fn func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if fn != nil {
			t.now = fn
		}
	}
}

// WithTimerFunc overrides countdown scheduling.
func WithTimerFunc(fn TimerFunc) TrackerOption {
	return func(t *Tracker) {
		if fn != nil {
			t.timer = fn
		}
	}
}

// NewTracker constructs a Tracker over the given backend.
func NewTracker(api Backend, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		api:     api,
		now:     time.Now,
		timer:   defaultTimer,
		records: make(map[recordKey]Record),
		dwells:  make(map[recordKey]func()),
		subs:    make(map[int]func(Update)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Subscribe registers a progress observer and returns its removal function.
func (t *Tracker) Subscribe(fn func(Update)) (unsubscribe func()) {
	t.subMu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.subMu.Unlock()
	return func() {
		t.subMu.Lock()
		delete(t.subs, id)
		t.subMu.Unlock()
	}
}

// StartDwell begins the countdown that must fully elapse before the lesson
// may be marked complete. Starting while a countdown is already running is a
// no-op. requiredSeconds <= 0 marks the lesson immediately.
func (t *Tracker) StartDwell(identity session.Identity, lessonID string, requiredSeconds int) error {
	if identity.IsZero() {
		return ErrNotAuthenticated
	}
	if lessonID == "" {
		return ErrInvalidInput
	}
	if requiredSeconds <= 0 {
		return t.MarkComplete(context.Background(), identity, lessonID)
	}

	key := recordKey{identity.ID, lessonID}
	t.mu.Lock()
	if t.records[key].Completed {
		t.mu.Unlock()
		return nil
	}
	if _, running := t.dwells[key]; running {
		t.mu.Unlock()
		return nil
	}
	stop := t.timer(time.Duration(requiredSeconds)*time.Second, func() {
		t.dwellExpired(identity, lessonID)
	})
	t.dwells[key] = stop
	t.mu.Unlock()
	return nil
}

// PauseDwell cancels the countdown. Elapsed time is discarded, not banked:
// restarting requires the full dwell time again.
func (t *Tracker) PauseDwell(identity session.Identity, lessonID string) {
	key := recordKey{identity.ID, lessonID}
	t.mu.Lock()
	stop, ok := t.dwells[key]
	delete(t.dwells, key)
	t.mu.Unlock()
	if ok {
		stop()
	}
}

// DwellActive reports whether a countdown is running for the lesson.
func (t *Tracker) DwellActive(identity session.Identity, lessonID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.dwells[recordKey{identity.ID, lessonID}]
	return ok
}

func (t *Tracker) dwellExpired(identity session.Identity, lessonID string) {
	key := recordKey{identity.ID, lessonID}
	t.mu.Lock()
	delete(t.dwells, key)
	t.mu.Unlock()
	if err := t.MarkComplete(context.Background(), identity, lessonID); err != nil {
		t.notify(Update{IdentityID: identity.ID, LessonID: lessonID, Err: err})
	}
}

// MarkComplete asks the backend to record completion and only then sets the
// local flag.
func (t *Tracker) MarkComplete(ctx context.Context, identity session.Identity, lessonID string) error {
	if identity.IsZero() {
		return ErrNotAuthenticated
	}
	if lessonID == "" {
		return ErrInvalidInput
	}
	if err := t.api.MarkLessonComplete(ctx, lessonID); err != nil {
		return err
	}
	key := recordKey{identity.ID, lessonID}
	t.mu.Lock()
	t.records[key] = Record{Completed: true, CompletedAt: t.now().UTC()}
	t.mu.Unlock()
	t.notify(Update{IdentityID: identity.ID, LessonID: lessonID, Completed: true})
	return nil
}

// UnmarkComplete is the symmetric operation with the same discipline.
func (t *Tracker) UnmarkComplete(ctx context.Context, identity session.Identity, lessonID string) error {
	if identity.IsZero() {
		return ErrNotAuthenticated
	}
	if lessonID == "" {
		return ErrInvalidInput
	}
	if err := t.api.UnmarkLessonComplete(ctx, lessonID); err != nil {
		return err
	}
	key := recordKey{identity.ID, lessonID}
	t.mu.Lock()
	delete(t.records, key)
	t.mu.Unlock()
	t.notify(Update{IdentityID: identity.ID, LessonID: lessonID, Completed: false})
	return nil
}

// Completed returns the side-table record for (identity, lesson).
func (t *Tracker) Completed(identity session.Identity, lessonID string) Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.records[recordKey{identity.ID, lessonID}]
}

// SeedCompleted installs flags reported by a backend content fetch.
func (t *Tracker) SeedCompleted(identity session.Identity, lessonIDs []string, at time.Time) {
	if identity.IsZero() {
		return
	}
	t.mu.Lock()
	for _, id := range lessonIDs {
		t.records[recordKey{identity.ID, id}] = Record{Completed: true, CompletedAt: at.UTC()}
	}
	t.mu.Unlock()
}

// CourseSummary derives progress over the given lessons on demand.
func (t *Tracker) CourseSummary(identity session.Identity, lessonIDs []string) Summary {
	done := 0
	t.mu.Lock()
	for _, id := range lessonIDs {
		if t.records[recordKey{identity.ID, id}].Completed {
			done++
		}
	}
	t.mu.Unlock()
	return Summary{
		Total:     len(lessonIDs),
		Completed: done,
		Percent:   Percent(done, len(lessonIDs)),
	}
}

func (t *Tracker) notify(u Update) {
	t.subMu.Lock()
	observers := make([]func(Update), 0, len(t.subs))
	for _, fn := range t.subs {
		observers = append(observers, fn)
	}
	t.subMu.Unlock()
	for _, fn := range observers {
		fn(u)
	}
}
