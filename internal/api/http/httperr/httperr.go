// Package httperr maps service errors onto HTTP responses.
package httperr

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prism-infra/prism-sync/internal/projects/domain"
	"github.com/prism-infra/prism-sync/internal/remote"
	"github.com/prism-infra/prism-sync/internal/session"
	"github.com/prism-infra/prism-sync/internal/whatif"
)

// Status picks the response code for err.
func Status(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrUnsavedProject):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound), remote.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoEditInProgress),
		errors.Is(err, domain.ErrEditMismatch),
		errors.Is(err, domain.ErrBatchInProgress),
		errors.Is(err, whatif.ErrSuperseded):
		return http.StatusConflict
	case remote.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// Write sends err as {"ok": false, "error": ...}. Local validation failures also
// name the rejected field.
func Write(c *gin.Context, err error) {
	body := gin.H{"ok": false, "error": err.Error()}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		body["field"] = verr.Field
	}

	c.JSON(Status(err), body)
}

// Abort is Write followed by c.Abort, for middleware.
func Abort(c *gin.Context, err error) {
	Write(c, err)
	c.Abort()
}
