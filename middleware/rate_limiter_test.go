package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientIPGenericDirect(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.10:54321"
	r.Header.Set("X-Forwarded-For", "10.0.0.1")

	ip := clientIPGeneric(r, nil)
	if ip != "203.0.113.10" {
		t.Fatalf("expected remote addr ip, got %q", ip)
	}
}

func TestClientIPGenericTrustedProxy(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.5:443"
	r.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.5")

	ip := clientIPGeneric(r, []string{"10.0.0.0/8"})
	if ip != "198.51.100.7" {
		t.Fatalf("expected first XFF hop, got %q", ip)
	}
}

func TestClientIPGenericUntrustedProxy(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.7:1234"
	r.Header.Set("X-Forwarded-For", "10.9.9.9")

	ip := clientIPGeneric(r, []string{"10.0.0.0/8"})
	if ip != "198.51.100.7" {
		t.Fatalf("spoofed XFF must be ignored, got %q", ip)
	}
}

func TestIPRateLimiterBlocksOverLimit(t *testing.T) {
	limiter := NewIPRateLimiter(3, time.Minute)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last int
	for i := 0; i < 5; i++ {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "192.0.2.1:1000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after exceeding limit, got %d", last)
	}

	// A different IP is unaffected.
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.2:1000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected fresh ip to pass, got %d", w.Code)
	}
}

func TestAccountLockoutProgression(t *testing.T) {
	const uid = 990001
	ResetFailedLogin(uid)

	if locked, _ := IsAccountLocked(uid); locked {
		t.Fatal("account should start unlocked")
	}
	RecordFailedLogin(uid)
	locked, remain := IsAccountLocked(uid)
	if !locked {
		t.Fatal("account should lock after a failed login")
	}
	if remain <= 0 || remain > time.Minute {
		t.Fatalf("first lockout should be at most one minute, got %v", remain)
	}

	ResetFailedLogin(uid)
	if locked, _ := IsAccountLocked(uid); locked {
		t.Fatal("reset should clear the lock")
	}
}

func TestAcquireCatchupSlot(t *testing.T) {
	const uid = 990002
	ReleaseCatchupSlot(uid)

	ok, _ := AcquireCatchupSlot(uid, time.Minute)
	if !ok {
		t.Fatal("first acquire should win the slot")
	}
	ok, remain := AcquireCatchupSlot(uid, time.Minute)
	if ok {
		t.Fatal("second acquire within ttl should lose")
	}
	if remain <= 0 {
		t.Fatalf("expected positive remaining ttl, got %v", remain)
	}

	ReleaseCatchupSlot(uid)
	if ok, _ := AcquireCatchupSlot(uid, time.Minute); !ok {
		t.Fatal("release should free the slot")
	}
	ReleaseCatchupSlot(uid)
}
