package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gomhangpro/backend/internal/domain"
	"gomhangpro/backend/internal/store/memory"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	h, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := rec.Header().Get("Referrer-Policy"); got != "strict-origin-when-cross-origin" {
		t.Fatalf("unexpected Referrer-Policy %q", got)
	}
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	h, _ := newTestAPI(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/auth/me"},
		{http.MethodGet, "/api/shifts/"},
		{http.MethodGet, "/api/orders/"},
		{http.MethodGet, "/api/customers/"},
		{http.MethodGet, "/api/users/"},
	}
	for _, p := range paths {
		rec, env := doJSON(t, h, p.method, p.path, "", nil)
		if rec.Code != http.StatusUnauthorized || env.Success {
			t.Fatalf("%s %s: expected 401 without token, got %d %s",
				p.method, p.path, rec.Code, rec.Body.String())
		}
	}
}

func TestGarbageTokenRejected(t *testing.T) {
	h, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestTokenSignedWithWrongSecretRejected(t *testing.T) {
	h, _ := newTestAPI(t)

	other := NewAuthManager("ffffffffffffffffffffffffffffffff", 15*time.Minute, 720*time.Hour, memory.NewSeeded(), nil)
	resp, err := other.Login(context.Background(), domain.LoginRequest{Email: "admin@gomhang.vn", Password: "admin123"})
	if err != nil {
		t.Fatalf("login on foreign manager failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected token from another secret to be rejected, got %d", rec.Code)
	}
}

func TestLoginRateLimit(t *testing.T) {
	h, _ := newTestAPI(t)

	body := `{"email":"admin@gomhang.vn","password":"wrong-password"}`
	var lastCode int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "203.0.113.9:40000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		lastCode = rec.Code
	}
	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 6th attempt to hit the limiter, got %d", lastCode)
	}

	// A different client address is unaffected.
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.10:40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected other client to pass the limiter, got %d", rec.Code)
	}
}

func TestAttemptLimiterWindow(t *testing.T) {
	limiter := newAttemptLimiter(2, 50*time.Millisecond)

	if !limiter.Allow("k") || !limiter.Allow("k") {
		t.Fatalf("expected first two attempts to pass")
	}
	if limiter.Allow("k") {
		t.Fatalf("expected third attempt inside the window to be blocked")
	}
	time.Sleep(60 * time.Millisecond)
	if !limiter.Allow("k") {
		t.Fatalf("expected attempt after the window to pass again")
	}
}

func TestBodyLimitRejectsOversizedPayload(t *testing.T) {
	h, _ := newTestAPI(t)
	token := loginAs(t, h, "admin@gomhang.vn", "admin123")

	big := bytes.Repeat([]byte("a"), (1<<20)+1024)
	payload := []byte(`{"name":"`)
	payload = append(payload, big...)
	payload = append(payload, []byte(`"}`)...)

	req := httptest.NewRequest(http.MethodPost, "/api/customers/", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected oversized body to be rejected, got %d", rec.Code)
	}
}

func TestWrongPasswordDoesNotRevealWhichFieldFailed(t *testing.T) {
	h, _ := newTestAPI(t)

	recBadPass, envBadPass := doJSON(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "admin@gomhang.vn", "password": "wrong",
	})
	recBadEmail, envBadEmail := doJSON(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "nobody@gomhang.vn", "password": "admin123",
	})

	if recBadPass.Code != http.StatusUnauthorized || recBadEmail.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for both failures, got %d / %d", recBadPass.Code, recBadEmail.Code)
	}
	if envBadPass.Error != envBadEmail.Error {
		t.Fatalf("error messages differ, leaking which field failed: %q vs %q",
			envBadPass.Error, envBadEmail.Error)
	}
}
