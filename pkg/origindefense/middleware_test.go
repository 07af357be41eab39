package origindefense

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWrap(t *testing.T) {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New(l, Config{
		Enabled:      true,
		AllowIPs:     []string{"203.0.113.7", "not-an-ip"},
		AllowCIDRs:   []string{"10.1.0.0/16", "2001:db8::/32"},
		AllowLocal:   true,
		RealIPHeader: "X-Forwarded-For",
	})
	h := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))
	tests := []struct {
		remote, xff string
		want        int
	}{
		{"203.0.113.7:5000", "", http.StatusNoContent},
		{"127.0.0.1:5000", "", http.StatusNoContent},
		{"[::1]:5000", "", http.StatusNoContent},
		{"10.1.2.3:80", "", http.StatusNoContent},
		{"[2001:db8::5]:80", "", http.StatusNoContent},
		{"198.51.100.1:80", "", http.StatusForbidden},
		{"198.51.100.1:80", "10.1.9.9, 198.51.100.1", http.StatusNoContent},
		{"10.1.2.3:80", "198.51.100.9", http.StatusForbidden},
		{"garbage", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		if tt.xff != "" {
			req.Header.Set("X-Forwarded-For", tt.xff)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("remote=%s xff=%q: status %d, want %d", tt.remote, tt.xff, rec.Code, tt.want)
		}
	}
}

func TestWrapDisabled(t *testing.T) {
	m := New(slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := m.Wrap(next)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.1:80"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("disabled middleware blocked request: %d", rec.Code)
	}
}
