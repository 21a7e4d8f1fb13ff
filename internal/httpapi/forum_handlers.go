package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"learnhub.org/internal/audit"
	"learnhub.org/internal/forum"
)

type createThreadRequest struct {
	Topic string `json:"topic"`
}

type sendMessageRequest struct {
	Body string `json:"body"`
}

func (a *API) handleLessonThreads(w http.ResponseWriter, r *http.Request, lessonID string) {
	switch r.Method {
	case http.MethodGet:
		a.listThreads(w, r, lessonID)
	case http.MethodPost:
		a.createThread(w, r, lessonID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleThreadResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/threads/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if threadID, ok := strings.CutSuffix(path, "/messages"); ok && threadID != "" && !strings.Contains(threadID, "/") {
		switch r.Method {
		case http.MethodGet:
			a.listMessages(w, r, threadID)
		case http.MethodPost:
			a.sendMessage(w, r, threadID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodDelete:
		a.deleteThread(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodDelete)
	}
}

func (a *API) listThreads(w http.ResponseWriter, r *http.Request, lessonID string) {
	if _, ok := a.requireIdentity(w, r); !ok {
		return
	}
	items, err := a.forum.ListThreads(r.Context(), lessonID)
	if err != nil {
		handleForumError(w, r, err)
		return
	}
	if items == nil {
		items = []forum.Thread{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createThread(w http.ResponseWriter, r *http.Request, lessonID string) {
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	var req createThreadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	thread, err := a.forum.CreateThread(r.Context(), lessonID, identity.ID, req.Topic)
	if err != nil {
		handleForumError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "forum.thread.create", map[string]any{
		"thread_id": thread.ID,
		"lesson_id": lessonID,
		"identity":  identity.ID,
	})

	w.Header().Set("Location", "/v1/threads/"+thread.ID)
	writeJSON(w, http.StatusCreated, thread)
}

func (a *API) deleteThread(w http.ResponseWriter, r *http.Request, threadID string) {
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	if err := a.forum.DeleteThread(r.Context(), threadID); err != nil {
		handleForumError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "forum.thread.delete", map[string]any{
		"thread_id": threadID,
		"identity":  identity.ID,
	})

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listMessages(w http.ResponseWriter, r *http.Request, threadID string) {
	if _, ok := a.requireIdentity(w, r); !ok {
		return
	}
	items, err := a.forum.ListMessages(r.Context(), threadID)
	if err != nil {
		handleForumError(w, r, err)
		return
	}
	if items == nil {
		items = []forum.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) sendMessage(w http.ResponseWriter, r *http.Request, threadID string) {
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := a.forum.CreateMessage(r.Context(), threadID, identity.ID, req.Body)
	if err != nil {
		handleForumError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "forum.message.create", map[string]any{
		"thread_id":  threadID,
		"message_id": msg.ID,
		"identity":   identity.ID,
	})

	writeJSON(w, http.StatusCreated, msg)
}

func handleForumError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, forum.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, forum.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, forum.ErrNotAuthenticated):
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
