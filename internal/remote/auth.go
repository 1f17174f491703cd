package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prism-infra/prism-sync/internal/session"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.call(ctx, session.Session{}, "login", http.MethodPost, "/auth/login", nil, req, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("login: empty access token")
	}
	return &out, nil
}
