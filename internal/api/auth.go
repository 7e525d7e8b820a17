package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/hylla/kanri/internal/domain"
)

// LoginResult is the token and profile returned by a successful login.
type LoginResult struct {
	Token string
	User  domain.User
}

// PrehashPassword returns the hex SHA-256 digest sent instead of the raw password.
func PrehashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func (c *Client) passwordForWire(password string) string {
	if c.cfg.PrehashPasswords {
		return PrehashPassword(password)
	}
	return password
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	body := LoginRequest{
		Username: strings.TrimSpace(username),
		Password: c.passwordForWire(password),
	}
	var resp LoginResponse
	if err := c.getParsedResponse(ctx, "POST", c.v1("/auth/login"), body, &resp); err != nil {
		return LoginResult{}, err
	}
	if resp.Token == nil || strings.TrimSpace(*resp.Token) == "" {
		return LoginResult{}, malformed("login response has no token")
	}
	if resp.User == nil {
		return LoginResult{}, malformed("login response has no user")
	}
	user, err := resp.User.ToDomain()
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: *resp.Token, User: user}, nil
}

// ChangePassword updates the signed-in user's password.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	body := ChangePasswordRequest{
		CurrentPassword: c.passwordForWire(current),
		NewPassword:     c.passwordForWire(next),
	}
	return c.getParsedResponse(ctx, "POST", c.v1("/user-settings/change-password"), body, nil)
}

// UserSettings fetches the signed-in user's settings.
func (c *Client) UserSettings(ctx context.Context) (domain.UserSettings, error) {
	var resp UserSettings
	if err := c.getParsedResponse(ctx, "GET", c.v1("/user-settings"), nil, &resp); err != nil {
		return domain.UserSettings{}, err
	}
	return resp.ToDomain()
}

// UpdateUserSettings stores settings and returns the server's copy.
func (c *Client) UpdateUserSettings(ctx context.Context, settings domain.UserSettings) (domain.UserSettings, error) {
	var resp UserSettings
	if err := c.getParsedResponse(ctx, "PUT", c.v1("/user-settings"), UserSettingsFromDomain(settings), &resp); err != nil {
		return domain.UserSettings{}, err
	}
	return resp.ToDomain()
}
