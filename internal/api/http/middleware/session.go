package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prism-infra/prism-sync/internal/api/http/httperr"
	"github.com/prism-infra/prism-sync/internal/session"
)

const (
	SessionHeader = "X-Session-Id"
	UserHeader    = "X-User-Id"

	sessionKey = "session"
)

// SessionStore resolves stored sessions.
type SessionStore interface {
	Get(ctx context.Context, id string) (session.Session, error)
}

// Forgetter drops per-session state of a session that no longer exists.
type Forgetter interface {
	Forget(sess session.Session)
}

// SessionMiddleware puts the caller's session on the gin context. A stored session
// named by X-Session-Id wins; otherwise the session is built from the bearer token
// and X-User-Id. Missing credentials are not rejected here: calls go out without
// an Authorization header and the remote API decides. When a stored session has
// expired, forget (optional) is told so its list view can go.
func SessionMiddleware(store SessionStore, forget Forgetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sid := strings.TrimSpace(c.GetHeader(SessionHeader)); sid != "" {
			sess, err := store.Get(c.Request.Context(), sid)
			if err != nil {
				if forget != nil && errors.Is(err, session.ErrSessionNotFound) {
					forget.Forget(session.Session{ID: sid})
				}
				httperr.Abort(c, err)
				return
			}
			c.Set(sessionKey, sess)
			c.Next()
			return
		}

		c.Set(sessionKey, session.Session{
			Token:  bearerToken(c.GetHeader("Authorization")),
			UserID: strings.TrimSpace(c.GetHeader(UserHeader)),
		})
		c.Next()
	}
}

// SessionFrom returns the session set by SessionMiddleware, or the zero Session.
func SessionFrom(c *gin.Context) session.Session {
	if v, ok := c.Get(sessionKey); ok {
		if sess, ok := v.(session.Session); ok {
			return sess
		}
	}
	return session.Session{}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
