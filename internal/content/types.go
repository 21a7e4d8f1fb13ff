// Package content assembles the lesson tree a caller is allowed to see:
// the full course for entitled identities, a redacted preview for everyone
// else.
package content

import (
	"context"
	"errors"
	"sync"
)

// Kind classifies how a lesson is presented.
type Kind string

const (
	KindVideo Kind = "video"
	KindText  Kind = "text"
	KindQuiz  Kind = "quiz"
)

// Lesson is the course-template record; completion lives in the progress
// side-table, not here.
type Lesson struct {
	ID              string `json:"id"`
	SectionID       string `json:"section_id"`
	Title           string `json:"title"`
	Kind            Kind   `json:"kind"`
	ContentRef      string `json:"content_ref"`
	RequiredSeconds int    `json:"required_seconds"`
}

type Section struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Lessons []Lesson `json:"lessons"`
}

type Course struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Price    int64     `json:"price"` // minor units
	Sections []Section `json:"sections"`
}

// LessonIDs returns every lesson id in tree order.
func (c Course) LessonIDs() []string {
	var out []string
	for _, s := range c.Sections {
		for _, l := range s.Lessons {
			out = append(out, l.ID)
		}
	}
	return out
}

// FindLesson locates a lesson by id.
func (c Course) FindLesson(id string) (Lesson, bool) {
	for _, s := range c.Sections {
		for _, l := range s.Lessons {
			if l.ID == id {
				return l, true
			}
		}
	}
	return Lesson{}, false
}

var ErrNotFound = errors.New("content: not found")

// Catalog resolves course data.
type Catalog interface {
	Course(ctx context.Context, id string) (Course, error)
	CourseByLesson(ctx context.Context, lessonID string) (Course, error)
}

// MemoryCatalog implements Catalog over an in-process map.
type MemoryCatalog struct {
	mu       sync.RWMutex
	courses  map[string]Course
	byLesson map[string]string // lessonID -> courseID
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		courses:  make(map[string]Course),
		byLesson: make(map[string]string),
	}
}

// Add registers or replaces a course.
func (m *MemoryCatalog) Add(c Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.courses[c.ID]; ok {
		for _, id := range old.LessonIDs() {
			delete(m.byLesson, id)
		}
	}
	m.courses[c.ID] = c
	for _, id := range c.LessonIDs() {
		m.byLesson[id] = c.ID
	}
}

func (m *MemoryCatalog) Course(ctx context.Context, id string) (Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return Course{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryCatalog) CourseByLesson(ctx context.Context, lessonID string) (Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	courseID, ok := m.byLesson[lessonID]
	if !ok {
		return Course{}, ErrNotFound
	}
	return m.courses[courseID], nil
}

var _ Catalog = (*MemoryCatalog)(nil)
