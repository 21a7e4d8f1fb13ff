package forum

import (
	"context"
	"strings"
	"sync"

	"learnhub.org/internal/session"
)

// Backend is the forum surface of the companion API.
type Backend interface {
	ListThreads(ctx context.Context, lessonID string) ([]Thread, error)
	CreateThread(ctx context.Context, lessonID, topic string) (Thread, error)
	DeleteThread(ctx context.Context, threadID string) error
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
	SendMessage(ctx context.Context, threadID, body string) (Message, error)
}

// Service gates forum operations on the current identity and forwards them
// to the backend. Writes are never inserted locally; callers refetch the
// list after a successful write, so a partial failure can't leave phantom
// entries on screen.
type Service struct {
	api     Backend
	session *session.Store

	mu      sync.Mutex
	threads map[string][]Thread // lessonID -> last fetched list
}

func NewService(api Backend, sessions *session.Store) *Service {
	return &Service{
		api:     api,
		session: sessions,
		threads: make(map[string][]Thread),
	}
}

func (s *Service) requireIdentity() (session.Identity, error) {
	id := s.session.Current()
	if id.IsZero() {
		return session.Identity{}, ErrNotAuthenticated
	}
	return id, nil
}

// ListThreads fetches and caches the lesson's threads.
func (s *Service) ListThreads(ctx context.Context, lessonID string) ([]Thread, error) {
	if _, err := s.requireIdentity(); err != nil {
		return nil, err
	}
	if lessonID == "" {
		return nil, ErrInvalidInput
	}
	list, err := s.api.ListThreads(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.threads[lessonID] = list
	s.mu.Unlock()
	return list, nil
}

// CachedThreads returns the last fetched list without a round trip.
func (s *Service) CachedThreads(lessonID string) []Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threads[lessonID]
}

func (s *Service) CreateThread(ctx context.Context, lessonID, topic string) (Thread, error) {
	if _, err := s.requireIdentity(); err != nil {
		return Thread{}, err
	}
	topic = strings.TrimSpace(topic)
	if lessonID == "" || topic == "" {
		return Thread{}, ErrInvalidInput
	}
	return s.api.CreateThread(ctx, lessonID, topic)
}

// DeleteThread forwards unconditionally once someone is logged in; whether
// this identity may delete this thread is the backend's decision.
func (s *Service) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.requireIdentity(); err != nil {
		return err
	}
	if threadID == "" {
		return ErrInvalidInput
	}
	return s.api.DeleteThread(ctx, threadID)
}

func (s *Service) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	if _, err := s.requireIdentity(); err != nil {
		return nil, err
	}
	if threadID == "" {
		return nil, ErrInvalidInput
	}
	return s.api.ListMessages(ctx, threadID)
}

func (s *Service) SendMessage(ctx context.Context, threadID, body string) (Message, error) {
	if _, err := s.requireIdentity(); err != nil {
		return Message{}, err
	}
	body = strings.TrimSpace(body)
	if threadID == "" || body == "" {
		return Message{}, ErrInvalidInput
	}
	return s.api.SendMessage(ctx, threadID, body)
}

// DropCache forgets cached threads, e.g. when the user leaves the lesson.
func (s *Service) DropCache(lessonID string) {
	s.mu.Lock()
	delete(s.threads, lessonID)
	s.mu.Unlock()
}
