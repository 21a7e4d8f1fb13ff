package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"learnhub.org/internal/audit"
	"learnhub.org/internal/content"
	"learnhub.org/internal/obs"
	"learnhub.org/internal/session"
	"learnhub.org/internal/stream"
)

func (a *API) handleLessonResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/lessons/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	lessonID, action := parts[0], parts[1]

	switch action {
	case "complete":
		a.setCompletion(w, r, lessonID, true)
	case "uncomplete":
		a.setCompletion(w, r, lessonID, false)
	case "threads":
		a.handleLessonThreads(w, r, lessonID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// setCompletion flips the completion record for one lesson. The record is
// the only state: the progress summary is always recomputed from it.
func (a *API) setCompletion(w http.ResponseWriter, r *http.Request, lessonID string, completed bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	identity := a.identityFromRequest(r)
	if identity.IsZero() {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	course, err := a.catalog.CourseByLesson(r.Context(), lessonID)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "lesson not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	ok, err := a.ledger.HasAccess(r.Context(), identity, course.ID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, http.StatusForbidden, "course access required")
		return
	}

	op := "complete"
	kind := stream.KindComplete
	if completed {
		err = a.records.SetCompleted(r.Context(), identity.ID, lessonID, time.Now().UTC())
	} else {
		op = "uncomplete"
		kind = stream.KindUncomplete
		err = a.records.ClearCompleted(r.Context(), identity.ID, lessonID)
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	obs.CountCompletion(op)
	if a.stream != nil {
		a.stream.Publish(stream.Event{
			Kind:       kind,
			IdentityID: identity.ID,
			CourseID:   course.ID,
			LessonID:   lessonID,
		})
	}
	_ = audit.LogEvent(r.Context(), "progress."+op, map[string]any{
		"lesson_id": lessonID,
		"course_id": course.ID,
		"identity":  identity.ID,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"lesson_id": lessonID,
		"completed": completed,
	})
}

// requireIdentity is the guard shared by the forum handlers.
func (a *API) requireIdentity(w http.ResponseWriter, r *http.Request) (session.Identity, bool) {
	identity := a.identityFromRequest(r)
	if identity.IsZero() {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return session.Identity{}, false
	}
	return identity, true
}
