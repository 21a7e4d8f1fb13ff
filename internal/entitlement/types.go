// Package entitlement answers "may this identity view this course's full
// content". The backend ledger is the sole authority; the client-side Cache
// is a presentation mirror, never a security boundary.
package entitlement

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a purchase record.
type Status string

const (
	StatusActive   Status = "active"
	StatusExpired  Status = "expired"
	StatusRefunded Status = "refunded"
)

// Entitlement grants one identity access to one course. At most one active
// record may exist per (identity, course) pair.
type Entitlement struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	CourseID   string    `json:"course_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	PricePaid  int64     `json:"price_paid"` // minor units
	Status     Status    `json:"status"`
}

// Active reports whether the record currently grants access.
func (e Entitlement) Active() bool { return e.Status == StatusActive }

// AssignmentRole distinguishes course staff.
type AssignmentRole string

const (
	RoleInstructor AssignmentRole = "instructor"
	RoleAssistant  AssignmentRole = "assistant"
)

// Assignment links a teacher to a course and grants implicit full access
// without a purchase record. Read-only in this subsystem.
type Assignment struct {
	TeacherID string         `json:"teacher_id"`
	CourseID  string         `json:"course_id"`
	Role      AssignmentRole `json:"role"`
}

var (
	ErrNotFound         = errors.New("entitlement: not found")
	ErrNotAuthenticated = errors.New("entitlement: not authenticated")
	ErrInvalidInput     = errors.New("entitlement: invalid input")
)
