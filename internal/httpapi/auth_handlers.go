package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"learnhub.org/internal/audit"
	"learnhub.org/internal/auth"
	"learnhub.org/internal/session"
	"learnhub.org/internal/stream"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Identity  session.Identity `json:"identity"`
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
}

const tokenTTL = 24 * time.Hour

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.registrar.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		// One message for every failure mode so callers cannot probe
		// which emails exist.
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	a.issueSession(w, r, user, stream.KindLogin, "auth.login")
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.registrar.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAlreadyExists):
			writeError(w, r, http.StatusConflict, "email already registered")
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	a.issueSession(w, r, user, stream.KindRegister, "auth.register")
}

func (a *API) issueSession(w http.ResponseWriter, r *http.Request, user *auth.User, kind, event string) {
	token, err := auth.GenerateToken(user.ID, string(user.Role), tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	expiresAt := time.Now().UTC().Add(tokenTTL)

	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"user_id":    user.ID,
		"role":       string(user.Role),
		"expires_at": expiresAt.Format(time.RFC3339),
	})
	if a.stream != nil {
		a.stream.Publish(stream.Event{Kind: kind, IdentityID: user.ID})
	}

	code := http.StatusOK
	if event == "auth.register" {
		code = http.StatusCreated
	}
	writeJSON(w, code, authResponse{
		Identity:  user.Identity(),
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// handleLogout acknowledges the client-side sign-out. Tokens are stateless,
// so the acknowledgement only records the event; expiry does the rest.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	fields := map[string]any{}
	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		fields["user_id"] = userID
	} else if header := strings.TrimSpace(r.Header.Get(authHeader)); header != "" {
		// Logout is a public path: decode the token opportunistically so
		// the audit trail names the user even with an expired session.
		if token, err := extractBearerToken(header); err == nil {
			if claims, err := auth.ParseAndValidate(token); err == nil {
				fields["user_id"] = claims.Subject
			}
		}
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", fields)

	w.WriteHeader(http.StatusNoContent)
}
