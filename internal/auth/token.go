// SPDX-License-Identifier: MIT

// Package auth holds the bearer-token check that guards the HTTP and
// websocket surfaces. One static API token, compared in constant time.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"
)

// ExtractToken retrieves the API token from the request.
//  1. Authorization: Bearer <token>
//  2. Header: X-API-Token (legacy clients)
//  3. Query: ?token= (websocket dials that cannot set headers)
func ExtractToken(r *http.Request, allowQuery bool) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if t := r.Header.Get("X-API-Token"); t != "" {
		return t
	}
	if allowQuery {
		if t := r.URL.Query().Get("token"); t != "" {
			return t
		}
	}
	return ""
}

// AuthorizeToken returns true if got matches expected using constant-time
// comparison. Empty tokens are always unauthorized: a server configured
// without a token accepts nothing, it does not accept everything.
func AuthorizeToken(got, expected string) bool {
	if strings.TrimSpace(expected) == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// Guard validates requests against the configured token. A positive TTL
// bounds the token's life from guard creation; after expiry every request
// is refused until the operator rotates the token and restarts.
type Guard struct {
	expected  string
	expiresAt time.Time
	now       func() time.Time
}

// NewGuard builds a guard for the configured token. ttl <= 0 means the
// token never expires. now may be nil.
func NewGuard(expected string, ttl time.Duration, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	g := &Guard{expected: expected, now: now}
	if ttl > 0 {
		g.expiresAt = now().Add(ttl)
	}
	return g
}

// Expired reports whether the token's TTL has elapsed.
func (g *Guard) Expired() bool {
	return !g.expiresAt.IsZero() && g.now().After(g.expiresAt)
}

// Authorize extracts a token from r and validates it.
func (g *Guard) Authorize(r *http.Request, allowQuery bool) bool {
	if r == nil || g.Expired() {
		return false
	}
	return AuthorizeToken(ExtractToken(r, allowQuery), g.expected)
}
