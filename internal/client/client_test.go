package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"learnhub.org/internal/content"
	"learnhub.org/internal/forum"
	"learnhub.org/internal/session"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, WithHTTPClient(srv.Client()))
}

func TestAuthenticateInstallsToken(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/auth/login" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req["email"] != "alice@example.com" {
			t.Fatalf("email = %q", req["email"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"identity": session.Identity{ID: "user_1", Email: req["email"], Role: session.RoleStudent},
			"token":    "tok-abc",
		})
	})

	id, err := c.Authenticate(context.Background(), "alice@example.com", "secret123")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.ID != "user_1" {
		t.Fatalf("identity = %+v", id)
	}
	if c.Token() != "tok-abc" {
		t.Fatalf("token = %q, want tok-abc", c.Token())
	}
}

func TestAuthenticateBadCredentials(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
	})
	c.SetToken("stale")

	_, err := c.Authenticate(context.Background(), "alice@example.com", "wrong")
	if !errors.Is(err, session.ErrBadCredentials) {
		t.Fatalf("err = %v, want ErrBadCredentials", err)
	}
	if c.Token() != "" {
		t.Fatal("stale token survived a failed login")
	}
}

func TestLogoutClearsTokenBeforeBackendCall(t *testing.T) {
	var sawAuth string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusInternalServerError)
	})
	c.SetToken("tok-abc")

	// The acknowledgement fails server-side; the token must be gone anyway.
	_ = c.Logout(context.Background())
	if c.Token() != "" {
		t.Fatal("token survived logout")
	}
	if sawAuth != "Bearer tok-abc" {
		t.Fatalf("Authorization = %q", sawAuth)
	}
}

func TestBearerTokenAttached(t *testing.T) {
	var sawAuth string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{"items": []forum.Thread{}})
	})
	c.SetToken("tok-xyz")

	threads, err := c.ListThreads(context.Background(), "py-101-l1")
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(threads) != 0 {
		t.Fatalf("threads = %v, want empty", threads)
	}
	if sawAuth != "Bearer tok-xyz" {
		t.Fatalf("Authorization = %q", sawAuth)
	}
}

func TestFetchCourseContentNotFound(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "course not found"})
	})

	_, err := c.FetchCourseContent(context.Background(), "missing")
	if !errors.Is(err, content.ErrNotFound) {
		t.Fatalf("err = %v, want content.ErrNotFound", err)
	}
}

func TestPurchaseIdempotentResponse(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/purchases" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"entitlement":   map[string]any{"id": "ent_1", "course_id": "python-essentials"},
			"already_owned": true,
		})
	})
	c.SetToken("tok")

	res, err := c.Purchase(context.Background(), "python-essentials", 4900)
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if !res.AlreadyOwned {
		t.Fatal("AlreadyOwned = false, want true")
	}
	if res.Entitlement.ID != "ent_1" {
		t.Fatalf("entitlement = %+v", res.Entitlement)
	}
}

func TestForumErrorMapping(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "thread not found"})
	})

	_, err := c.ListMessages(context.Background(), "thr_missing")
	if !errors.Is(err, forum.ErrNotFound) {
		t.Fatalf("err = %v, want forum.ErrNotFound", err)
	}
}
