package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	sessionContextKey contextKey = "session"

	// SessionCookieName identifies the browser session that owns segments,
	// the custom preset and jobs
	SessionCookieName = "cs_session"

	// SessionMaxAge is the max-age of the session cookie (30 days)
	SessionMaxAge = 30 * 24 * 60 * 60
)

// Sessions assigns every client an anonymous session id
type Sessions struct {
	secure bool
}

// NewSessions creates the session middleware. secure marks the cookie HTTPS only.
func NewSessions(secure bool) *Sessions {
	return &Sessions{secure: secure}
}

// Handler reads the session cookie, issuing a new one when it is missing or malformed
func (s *Sessions) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if cookie, err := r.Cookie(SessionCookieName); err == nil {
			if parsed, err := uuid.Parse(cookie.Value); err == nil {
				id = parsed.String()
			}
		}

		if id == "" {
			id = uuid.New().String()
			sameSite := http.SameSiteLaxMode
			if s.secure {
				sameSite = http.SameSiteNoneMode
			}
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookieName,
				Value:    id,
				Path:     "/",
				MaxAge:   SessionMaxAge,
				HttpOnly: true,
				Secure:   s.secure,
				SameSite: sameSite,
			})
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), id)))
	})
}

// WithSession stores a session id in ctx
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionContextKey, id)
}

// SessionID returns the session id stored by the session middleware, or ""
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionContextKey).(string)
	return id
}
