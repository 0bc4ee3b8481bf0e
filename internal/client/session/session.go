// Package session carries the authenticated caller identity explicitly.
// There is deliberately no package-level current-session state: a Context is
// constructed at login and handed to the components that need it.
package session

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Context identifies the local device and account for outbound calls.
// Safe for concurrent use; the remote client refreshes tokens in place.
type Context struct {
	mu sync.RWMutex

	UserID   string
	DeviceID string

	accessToken  string
	refreshToken string
}

// New returns a Context for the given account and device.
func New(userID, deviceID string) *Context {
	return &Context{UserID: userID, DeviceID: deviceID}
}

// SetTokens stores a fresh access/refresh token pair.
func (c *Context) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = access
	c.refreshToken = refresh
}

// AccessToken returns the current access token, empty when not logged in.
func (c *Context) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// RefreshToken returns the current refresh token.
func (c *Context) RefreshToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshToken
}

// Clear drops both tokens (logout).
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	c.refreshToken = ""
}

// AccessTokenExpired inspects the token's exp claim without verifying the
// signature; verification is the server's job, the client only wants to
// refresh proactively instead of burning a round-trip on a 401. A token
// without a readable exp claim is not treated as expired: the reactive
// 401 path covers it.
func (c *Context) AccessTokenExpired(now time.Time) bool {
	token := c.AccessToken()
	if token == "" {
		return false
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.After(exp.Time)
}
