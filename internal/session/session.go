package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is the caller identity passed explicitly into every store and predictor call.
// An empty Token means requests go out without an Authorization header.
type Session struct {
	ID     string `json:"session_id,omitempty"`
	Token  string `json:"-"`
	UserID string `json:"user_id,omitempty"`
}

// Authorization returns the header value for outgoing requests, or "" when there is no token.
func (s Session) Authorization() string {
	if s.Token == "" {
		return ""
	}
	return "Bearer " + s.Token
}

// Key identifies the list view owned by this caller.
func (s Session) Key() string {
	if s.ID != "" {
		return "sid:" + s.ID
	}
	sum := sha256.Sum256([]byte(s.Token))
	return "user:" + s.UserID + ":" + hex.EncodeToString(sum[:8])
}
