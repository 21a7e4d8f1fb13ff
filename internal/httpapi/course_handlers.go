package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"learnhub.org/internal/audit"
	"learnhub.org/internal/content"
	"learnhub.org/internal/entitlement"
	"learnhub.org/internal/obs"
	"learnhub.org/internal/progress"
	"learnhub.org/internal/session"
	"learnhub.org/internal/stream"
)

type purchaseRequest struct {
	CourseID string `json:"course_id"`
	Price    int64  `json:"price"`
}

type purchaseResponse struct {
	Entitlement  entitlement.Entitlement `json:"entitlement"`
	AlreadyOwned bool                    `json:"already_owned"`
}

type courseContentResponse struct {
	Course   content.CourseView `json:"course"`
	Progress progress.Summary   `json:"progress"`
}

func (a *API) handleCourseResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/courses/")
	if id, ok := strings.CutSuffix(path, "/content"); ok && id != "" && !strings.Contains(id, "/") {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getCourseContent(w, r, id)
		return
	}
	writeError(w, r, http.StatusNotFound, "resource not found")
}

// getCourseContent serves the access-shaped lesson tree. Anonymous and
// unentitled callers get the redacted preview; entitled callers get the
// full tree plus their completion summary.
func (a *API) getCourseContent(w http.ResponseWriter, r *http.Request, courseID string) {
	course, err := a.catalog.Course(r.Context(), courseID)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "course not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	identity := a.identityFromRequest(r)

	hasAccess := false
	if !identity.IsZero() {
		hasAccess, err = a.ledger.HasAccess(r.Context(), identity, courseID)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
	}

	var summary progress.Summary
	completed := func(string) bool { return false }
	if hasAccess {
		lessonIDs := course.LessonIDs()
		set, err := a.records.CompletedSet(r.Context(), identity.ID, lessonIDs)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		done := 0
		for _, ok := range set {
			if ok {
				done++
			}
		}
		summary = progress.Summary{
			Total:     len(lessonIDs),
			Completed: done,
			Percent:   progress.Percent(done, len(lessonIDs)),
		}
		completed = func(lessonID string) bool { return set[lessonID] }
	}

	writeJSON(w, http.StatusOK, courseContentResponse{
		Course:   content.Resolve(course, hasAccess, completed),
		Progress: summary,
	})
}

func (a *API) handlePurchases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	identity := a.identityFromRequest(r)
	if identity.IsZero() {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req purchaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	courseID := strings.TrimSpace(req.CourseID)
	if courseID == "" {
		writeError(w, r, http.StatusBadRequest, "course_id is required")
		return
	}
	if _, err := a.catalog.Course(r.Context(), courseID); err != nil {
		writeError(w, r, http.StatusNotFound, "course not found")
		return
	}

	ent, alreadyOwned, err := a.ledger.Purchase(r.Context(), identity, courseID, req.Price)
	if err != nil {
		obs.CountPurchase("rejected")
		handleDomainError(w, r, err)
		return
	}

	outcome := "created"
	if alreadyOwned {
		outcome = "already_owned"
	}
	obs.CountPurchase(outcome)

	if !alreadyOwned && a.stream != nil {
		a.stream.Publish(stream.Event{
			Kind:       stream.KindPurchase,
			IdentityID: identity.ID,
			CourseID:   courseID,
			Amount:     ent.PricePaid,
		})
	}

	event := "entitlement.purchase"
	if alreadyOwned {
		event = "entitlement.purchase.idempotent_replay"
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"course_id": courseID,
		"price":     strconv.FormatInt(req.Price, 10),
		"ent_id":    ent.ID,
		"identity":  identity.ID,
	})

	code := http.StatusCreated
	if alreadyOwned {
		code = http.StatusOK
	}
	writeJSON(w, code, purchaseResponse{Entitlement: ent, AlreadyOwned: alreadyOwned})
}

func (a *API) handleEntitlements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	identity := a.identityFromRequest(r)
	if identity.IsZero() {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	items, err := a.ledger.Entitlements(r.Context(), identity.ID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if items == nil {
		items = []entitlement.Entitlement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, entitlement.ErrInvalidInput),
		errors.Is(err, progress.ErrInvalidInput),
		errors.Is(err, session.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, entitlement.ErrNotAuthenticated),
		errors.Is(err, progress.ErrNotAuthenticated):
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, entitlement.ErrNotFound), errors.Is(err, content.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
