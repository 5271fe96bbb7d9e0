package api

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSanitizePath(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", "/"},
		{"/api/health", "/api/health"},
		{"/api/chat/conversations/start", "/api/chat/conversations/start"},
		{"/api/chat/conversations/abc-123/messages", "/api/chat/conversations/:id/messages"},
		{"/api/chat/messages/m-1/read", "/api/chat/messages/:id/read"},
		{"/api/uploads/files/file-1-abc.png", "/api/uploads/files/:id"},
		{"/api/a/b/c/d/e/f", "/api/a/b/c/d/..."},
		{"/api/chat/conversations/abc-123/mark-read/", "/api/chat/conversations/:id/mark-read"},
	}
	for _, tc := range cases {
		if got := sanitizePath(tc.in); got != tc.want {
			t.Errorf("sanitizePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNewMetricsSharesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := newMetrics(reg, nil)
	second := newMetrics(reg, nil)
	if first.requests != second.requests {
		t.Fatal("expected the second server to reuse the registered counter")
	}
}
