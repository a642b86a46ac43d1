package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	l := New(5, time.Minute)
	defer l.Close()

	clientID := "10.0.0.1"

	for i := 0; i < 5; i++ {
		if !l.Allow(clientID) {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	if l.Allow(clientID) {
		t.Error("6th request should be denied")
	}

	if !l.Allow("10.0.0.2") {
		t.Error("Different client should be allowed")
	}
}

func TestLimiter_Refill(t *testing.T) {
	l := New(2, 100*time.Millisecond)
	defer l.Close()

	l.Allow("client")
	l.Allow("client")
	if l.Allow("client") {
		t.Error("Request should be denied after consuming all tokens")
	}

	time.Sleep(150 * time.Millisecond)

	if !l.Allow("client") {
		t.Error("Request should be allowed after token refill")
	}
}

func TestLimiter_RemoveIdle(t *testing.T) {
	l := New(1, time.Hour)
	defer l.Close()

	l.Allow("a")
	l.Allow("b")
	if l.Clients() != 2 {
		t.Fatalf("expected 2 clients, got %d", l.Clients())
	}

	l.removeIdle(time.Now().Add(time.Second))
	if l.Clients() != 0 {
		t.Errorf("expected idle clients removed, %d remain", l.Clients())
	}
}

func TestLimiter_CloseTwice(t *testing.T) {
	l := New(1, time.Second)
	l.Close()
	l.Close()
}

func TestMiddleware(t *testing.T) {
	l := New(1, time.Hour)
	defer l.Close()

	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/bodies", nil)
	req.RemoteAddr = "192.0.2.1:5000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("first request: expected 204, got %d", rec.Code)
	}

	// Same host, different port, shares the bucket
	req.RemoteAddr = "192.0.2.1:5001"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"192.0.2.1:1234", "192.0.2.1"},
		{"[2001:db8::1]:80", "2001:db8::1"},
		{"pipe", "pipe"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		if got := ClientKey(req); got != tt.want {
			t.Errorf("ClientKey(%q) = %q, want %q", tt.remote, got, tt.want)
		}
	}
}
