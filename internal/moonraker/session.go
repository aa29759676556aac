package moonraker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWT session endpoints and policy.
const (
	loginPath   = "/access/login"
	refreshPath = "/access/refresh_jwt"

	// loginSource identifies the credential store Moonraker should
	// authenticate against.
	loginSource = "moonraker"

	// tokenRefreshMargin renews the access token this long before its
	// exp claim, so a request never rides a token that expires mid
	// flight.
	tokenRefreshMargin = 30 * time.Second
)

// session tracks JWT credentials and issued tokens for one client.
type session struct {
	username     string
	password     string
	accessToken  string
	refreshToken string

	// expiresAt is the access token's exp claim. Zero means the token
	// carries no expiry and is used until the server rejects it.
	expiresAt time.Time
}

func newSession(username, password string) *session {
	return &session{username: username, password: password}
}

// ensureToken returns a usable access token, logging in on first use
// and refreshing near expiry. A failed refresh falls back to a full
// re-login before giving up.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	s := c.session
	if s.accessToken == "" {
		if err := c.login(ctx); err != nil {
			return "", err
		}
		return s.accessToken, nil
	}
	if s.expiresAt.IsZero() || time.Until(s.expiresAt) > tokenRefreshMargin {
		return s.accessToken, nil
	}
	if err := c.refreshSession(ctx); err != nil {
		c.logWarn("token refresh failed, retrying with full login", "error", err)
		if err := c.login(ctx); err != nil {
			return "", err
		}
	}
	return s.accessToken, nil
}

// login performs POST /access/login and stores the issued token pair.
func (c *Client) login(ctx context.Context) error {
	s := c.session
	body := map[string]string{
		"username": s.username,
		"password": s.password,
		"source":   loginSource,
	}
	var out struct {
		Result struct {
			Token        string `json:"token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"result"`
	}
	if err := c.doRaw(ctx, http.MethodPost, loginPath, nil, body, "", &out); err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	if out.Result.Token == "" {
		return fmt.Errorf("%w: server returned no access token", ErrLoginFailed)
	}
	s.accessToken = out.Result.Token
	s.refreshToken = out.Result.RefreshToken
	s.expiresAt = tokenExpiry(out.Result.Token)
	c.logDebug("moonraker login ok", "user", s.username, "expires_at", s.expiresAt)
	return nil
}

// refreshSession exchanges the refresh token for a new access token via
// POST /access/refresh_jwt.
func (c *Client) refreshSession(ctx context.Context) error {
	s := c.session
	if s.refreshToken == "" {
		return fmt.Errorf("%w: no refresh token held", ErrLoginFailed)
	}
	body := map[string]string{"refresh_token": s.refreshToken}
	var out struct {
		Result struct {
			Token string `json:"token"`
		} `json:"result"`
	}
	if err := c.doRaw(ctx, http.MethodPost, refreshPath, nil, body, "", &out); err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	if out.Result.Token == "" {
		return fmt.Errorf("%w: refresh returned no access token", ErrLoginFailed)
	}
	s.accessToken = out.Result.Token
	s.expiresAt = tokenExpiry(out.Result.Token)
	return nil
}

// tokenExpiry extracts the exp claim without verifying the signature.
// The client only schedules its own refresh from it; the server still
// enforces validity.
func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
