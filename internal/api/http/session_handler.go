package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prism-infra/prism-sync/internal/api/http/httperr"
	"github.com/prism-infra/prism-sync/internal/api/http/middleware"
	"github.com/prism-infra/prism-sync/internal/logging"
	"github.com/prism-infra/prism-sync/internal/remote"
	"github.com/prism-infra/prism-sync/internal/session"
)

// SessionRepository persists sessions.
type SessionRepository interface {
	Create(ctx context.Context, token, userID string) (session.Session, error)
	Delete(ctx context.Context, id string) error
}

// Authenticator exchanges credentials for a bearer token.
type Authenticator interface {
	Login(ctx context.Context, req remote.LoginRequest) (*remote.TokenResponse, error)
}

// SessionForgetter drops per-session state when a session ends.
type SessionForgetter interface {
	Forget(sess session.Session)
}

type SessionHandler struct {
	sessions SessionRepository
	auth     Authenticator
	views    SessionForgetter
	logger   *zap.Logger
}

func NewSessionHandler(sessions SessionRepository, auth Authenticator, views SessionForgetter, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{sessions: sessions, auth: auth, views: views, logger: logger}
}

type createSessionReq struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// create stores a token the client already holds.
func (h *SessionHandler) create(c *gin.Context) {
	var req createSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	sess, err := h.sessions.Create(c.Request.Context(), strings.TrimSpace(req.Token), strings.TrimSpace(req.UserID))
	if err != nil {
		logging.FromContext(c.Request.Context(), h.logger).Error("create_session", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to create session"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "session_id": sess.ID})
}

func (h *SessionHandler) delete(c *gin.Context) {
	sess := middleware.SessionFrom(c)
	if sess.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "X-Session-Id is required"})
		return
	}

	if err := h.sessions.Delete(c.Request.Context(), sess.ID); err != nil {
		logging.FromContext(c.Request.Context(), h.logger).Error("delete_session", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to delete session"})
		return
	}
	if h.views != nil {
		h.views.Forget(sess)
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	UserID   string `json:"user_id"`
}

// login exchanges credentials with the remote API and keeps the token server side.
func (h *SessionHandler) login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "email and password are required"})
		return
	}

	tok, err := h.auth.Login(c.Request.Context(), remote.LoginRequest{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	})
	if err != nil {
		if remote.IsValidation(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "invalid credentials"})
			return
		}
		httperr.Write(c, err)
		return
	}

	sess, err := h.sessions.Create(c.Request.Context(), tok.AccessToken, strings.TrimSpace(req.UserID))
	if err != nil {
		logging.FromContext(c.Request.Context(), h.logger).Error("login", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to create session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "session_id": sess.ID, "token_type": tok.TokenType})
}

// RegisterPublic attaches routes that do not need a resolved session.
func (h *SessionHandler) RegisterPublic(rg *gin.RouterGroup) {
	rg.POST("/session", h.create)
	rg.POST("/auth/login", h.login)
}

// Register attaches routes that act on the caller's session.
func (h *SessionHandler) Register(rg *gin.RouterGroup) {
	rg.DELETE("/session", h.delete)
}
