// Package client is the request/response collaborator the front-end model
// talks to. It adapts the companion HTTP API to the Backend interfaces of
// the session, progress and forum packages.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"learnhub.org/internal/content"
	"learnhub.org/internal/entitlement"
	"learnhub.org/internal/forum"
	"learnhub.org/internal/progress"
	"learnhub.org/internal/session"
)

// APIError carries the backend's status code and message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
}

// Client wraps the companion API. The bearer token is installed on login
// and cleared on logout; all other calls attach it automatically.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.Mutex
	token string
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient overrides the transport (useful for tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// New creates a client with sensible defaults.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current bearer token, empty when signed out.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SetToken installs a bearer token restored from a previous run.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) clearToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: payload.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Auth ---------------------------------------------------------------------

type authResponse struct {
	Identity  session.Identity `json:"identity"`
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
}

func (c *Client) Authenticate(ctx context.Context, email, password string) (session.Identity, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		c.clearToken()
		if statusOf(err) == http.StatusUnauthorized {
			return session.Identity{}, fmt.Errorf("%w: %v", session.ErrBadCredentials, err)
		}
		return session.Identity{}, err
	}
	c.SetToken(resp.Token)
	return resp.Identity, nil
}

func (c *Client) Register(ctx context.Context, name, email, password string) (session.Identity, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/v1/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		c.clearToken()
		return session.Identity{}, err
	}
	c.SetToken(resp.Token)
	return resp.Identity, nil
}

// Logout acknowledges best-effort: the token is dropped locally before the
// backend call, so a failed acknowledgement cannot keep the user signed in.
func (c *Client) Logout(ctx context.Context) error {
	token := c.Token()
	c.clearToken()
	if token == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/auth/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Content ------------------------------------------------------------------

// CourseContent is the access-shaped tree plus derived progress.
type CourseContent struct {
	Course   content.CourseView `json:"course"`
	Progress progress.Summary   `json:"progress"`
}

func (c *Client) FetchCourseContent(ctx context.Context, courseID string) (CourseContent, error) {
	var resp CourseContent
	err := c.do(ctx, http.MethodGet, "/v1/courses/"+courseID+"/content", nil, &resp)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return CourseContent{}, fmt.Errorf("%w: course %s", content.ErrNotFound, courseID)
		}
		return CourseContent{}, err
	}
	return resp, nil
}

// Entitlements -------------------------------------------------------------

// PurchaseResult mirrors the backend's idempotent purchase response.
type PurchaseResult struct {
	Entitlement  entitlement.Entitlement `json:"entitlement"`
	AlreadyOwned bool                    `json:"already_owned"`
}

func (c *Client) Purchase(ctx context.Context, courseID string, price int64) (PurchaseResult, error) {
	var resp PurchaseResult
	err := c.do(ctx, http.MethodPost, "/v1/purchases", map[string]any{
		"course_id": courseID,
		"price":     price,
	}, &resp)
	if err != nil {
		if statusOf(err) == http.StatusUnauthorized {
			return PurchaseResult{}, fmt.Errorf("%w: %v", entitlement.ErrNotAuthenticated, err)
		}
		return PurchaseResult{}, err
	}
	return resp, nil
}

func (c *Client) Entitlements(ctx context.Context) ([]entitlement.Entitlement, error) {
	var resp struct {
		Items []entitlement.Entitlement `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/entitlements", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Progress -----------------------------------------------------------------

func (c *Client) MarkLessonComplete(ctx context.Context, lessonID string) error {
	return c.completionCall(ctx, lessonID, "complete")
}

func (c *Client) UnmarkLessonComplete(ctx context.Context, lessonID string) error {
	return c.completionCall(ctx, lessonID, "uncomplete")
}

func (c *Client) completionCall(ctx context.Context, lessonID, op string) error {
	err := c.do(ctx, http.MethodPost, "/v1/lessons/"+lessonID+"/"+op, nil, nil)
	if err != nil && statusOf(err) == http.StatusUnauthorized {
		return fmt.Errorf("%w: %v", progress.ErrNotAuthenticated, err)
	}
	return err
}

// Forum --------------------------------------------------------------------

func (c *Client) ListThreads(ctx context.Context, lessonID string) ([]forum.Thread, error) {
	var resp struct {
		Items []forum.Thread `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/lessons/"+lessonID+"/threads", nil, &resp); err != nil {
		return nil, c.forumErr(err)
	}
	return resp.Items, nil
}

func (c *Client) CreateThread(ctx context.Context, lessonID, topic string) (forum.Thread, error) {
	var resp forum.Thread
	err := c.do(ctx, http.MethodPost, "/v1/lessons/"+lessonID+"/threads", map[string]string{
		"topic": topic,
	}, &resp)
	if err != nil {
		return forum.Thread{}, c.forumErr(err)
	}
	return resp, nil
}

func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	return c.forumErr(c.do(ctx, http.MethodDelete, "/v1/threads/"+threadID, nil, nil))
}

func (c *Client) ListMessages(ctx context.Context, threadID string) ([]forum.Message, error) {
	var resp struct {
		Items []forum.Message `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/threads/"+threadID+"/messages", nil, &resp); err != nil {
		return nil, c.forumErr(err)
	}
	return resp.Items, nil
}

func (c *Client) SendMessage(ctx context.Context, threadID, body string) (forum.Message, error) {
	var resp forum.Message
	err := c.do(ctx, http.MethodPost, "/v1/threads/"+threadID+"/messages", map[string]string{
		"body": body,
	}, &resp)
	if err != nil {
		return forum.Message{}, c.forumErr(err)
	}
	return resp, nil
}

func (c *Client) forumErr(err error) error {
	switch statusOf(err) {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %v", forum.ErrNotAuthenticated, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", forum.ErrNotFound, err)
	}
	return err
}

var (
	_ session.Backend  = (*Client)(nil)
	_ progress.Backend = (*Client)(nil)
	_ forum.Backend    = (*Client)(nil)
)
