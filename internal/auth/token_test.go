// SPDX-License-Identifier: MIT

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExtractTokenPriorityOrder(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.local/test?token=query", nil)
	r.Header.Set("Authorization", "Bearer bearer-token ")
	r.Header.Set("X-API-Token", "header-token")

	if got := ExtractToken(r, true); got != "bearer-token" {
		t.Fatalf("ExtractToken() = %q, want %q", got, "bearer-token")
	}
}

func TestExtractTokenAllowQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.local/test?token=query-token", nil)

	if got := ExtractToken(r, false); got != "" {
		t.Fatalf("ExtractToken(allowQuery=false) = %q, want empty", got)
	}
	if got := ExtractToken(r, true); got != "query-token" {
		t.Fatalf("ExtractToken(allowQuery=true) = %q, want %q", got, "query-token")
	}
}

func TestAuthorizeToken(t *testing.T) {
	if !AuthorizeToken("secret", "secret") {
		t.Fatal("AuthorizeToken should accept exact match")
	}
	if AuthorizeToken("secret", "other") {
		t.Fatal("AuthorizeToken should reject mismatch")
	}
	if AuthorizeToken("", "secret") {
		t.Fatal("AuthorizeToken should reject empty got token")
	}
	if AuthorizeToken("secret", "") {
		t.Fatal("AuthorizeToken should reject empty expected token")
	}
	if AuthorizeToken("secret", "   ") {
		t.Fatal("AuthorizeToken should reject blank expected token")
	}
}

func TestGuardAuthorize(t *testing.T) {
	g := NewGuard("secret", 0, nil)

	r := httptest.NewRequest(http.MethodGet, "http://example.local/v1/tools/track_engagement", nil)
	r.Header.Set("Authorization", "Bearer secret")
	if !g.Authorize(r, false) {
		t.Fatal("Guard should accept the configured token")
	}

	r.Header.Set("Authorization", "Bearer wrong")
	if g.Authorize(r, false) {
		t.Fatal("Guard should reject a wrong token")
	}
	if g.Authorize(nil, false) {
		t.Fatal("Guard should reject a nil request")
	}
}

func TestGuardTTLExpiry(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	now := func() time.Time { return current }

	g := NewGuard("secret", time.Hour, now)
	r := httptest.NewRequest(http.MethodGet, "http://example.local/ws", nil)
	r.Header.Set("Authorization", "Bearer secret")

	if !g.Authorize(r, false) {
		t.Fatal("Guard should accept before TTL expiry")
	}

	current = current.Add(2 * time.Hour)
	if !g.Expired() {
		t.Fatal("Guard should report expiry after TTL")
	}
	if g.Authorize(r, false) {
		t.Fatal("Guard should reject after TTL expiry")
	}
}
