package utils

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewAnonymousToken(t *testing.T) {
	a := NewAnonymousToken()
	b := NewAnonymousToken()
	if !strings.HasPrefix(a, AnonymousTokenPrefix) || len(a) != len(AnonymousTokenPrefix)+12 {
		t.Fatalf("unexpected token format %q", a)
	}
	if a == b {
		t.Fatal("expected distinct tokens")
	}
}

func TestRealClientIPPrefersFirstForwardedAddress(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := RealClientIP(req); got != "203.0.113.7" {
		t.Fatalf("unexpected ip %q", got)
	}
}

func TestRealClientIPFallbacks(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.10:51234"
	if got := RealClientIP(req); got != "192.0.2.10" {
		t.Fatalf("expected socket address, got %q", got)
	}

	req.Header.Set("X-Real-IP", "198.51.100.4")
	if got := RealClientIP(req); got != "198.51.100.4" {
		t.Fatalf("expected X-Real-IP, got %q", got)
	}
}
