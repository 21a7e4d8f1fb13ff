// Package forum is a thin discussion layer over the backend: threads per
// lesson, messages per thread. The backend owns the data; the client keeps
// only an ephemeral cache for the lesson currently on screen.
package forum

import (
	"context"
	"errors"
	"sync"
	"time"

	"learnhub.org/internal/ids"
)

type Thread struct {
	ID        string    `json:"id"`
	LessonID  string    `json:"lesson_id"`
	AuthorID  string    `json:"author_id,omitempty"`
	Topic     string    `json:"topic"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	AuthorID  string    `json:"author_id,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrNotFound         = errors.New("forum: not found")
	ErrNotAuthenticated = errors.New("forum: not authenticated")
	ErrInvalidInput     = errors.New("forum: invalid input")
)

// Store is the server-side thread/message persistence.
type Store interface {
	ListThreads(ctx context.Context, lessonID string) ([]Thread, error)
	CreateThread(ctx context.Context, lessonID, authorID, topic string) (Thread, error)
	DeleteThread(ctx context.Context, threadID string) error
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
	CreateMessage(ctx context.Context, threadID, authorID, body string) (Message, error)
}

// InMemory implements Store for tests and the reference server.
type InMemory struct {
	mu       sync.RWMutex
	threads  map[string]Thread    // threadID -> thread
	byLesson map[string][]string  // lessonID -> threadIDs in creation order
	messages map[string][]Message // threadID -> messages in creation order
	now      func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{
		threads:  make(map[string]Thread),
		byLesson: make(map[string][]string),
		messages: make(map[string][]Message),
		now:      time.Now,
	}
}

func (s *InMemory) ListThreads(ctx context.Context, lessonID string) ([]Thread, error) {
	if lessonID == "" {
		return nil, ErrInvalidInput
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]Thread, 0, len(s.byLesson[lessonID]))
	for _, id := range s.byLesson[lessonID] {
		list = append(list, s.threads[id])
	}
	return list, nil
}

func (s *InMemory) CreateThread(ctx context.Context, lessonID, authorID, topic string) (Thread, error) {
	if lessonID == "" || topic == "" {
		return Thread{}, ErrInvalidInput
	}
	t := Thread{
		ID:        ids.New(),
		LessonID:  lessonID,
		AuthorID:  authorID,
		Topic:     topic,
		CreatedAt: s.now().UTC(),
	}
	s.mu.Lock()
	s.threads[t.ID] = t
	s.byLesson[lessonID] = append(s.byLesson[lessonID], t.ID)
	s.mu.Unlock()
	return t, nil
}

func (s *InMemory) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[threadID]
	if !ok {
		return ErrNotFound
	}
	delete(s.threads, threadID)
	delete(s.messages, threadID)
	list := s.byLesson[t.LessonID]
	for i, id := range list {
		if id == threadID {
			s.byLesson[t.LessonID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (s *InMemory) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.threads[threadID]; !ok {
		return nil, ErrNotFound
	}
	out := make([]Message, len(s.messages[threadID]))
	copy(out, s.messages[threadID])
	return out, nil
}

func (s *InMemory) CreateMessage(ctx context.Context, threadID, authorID, body string) (Message, error) {
	if body == "" {
		return Message{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[threadID]; !ok {
		return Message{}, ErrNotFound
	}
	m := Message{
		ID:        ids.New(),
		ThreadID:  threadID,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: s.now().UTC(),
	}
	s.messages[threadID] = append(s.messages[threadID], m)
	return m, nil
}

var _ Store = (*InMemory)(nil)
