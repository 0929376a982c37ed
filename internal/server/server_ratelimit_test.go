package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"bookswap/internal/app"
	"bookswap/internal/store"
)

func TestSignupRateLimit(t *testing.T) {
	redis := miniredis.RunT(t)
	appCore, err := app.New(app.Config{
		Store:    store.NewMemoryStore(),
		Sessions: store.NewJWTSessionStore("test-secret", time.Hour),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	s, err := New(Config{
		App:                      appCore,
		RedisAddr:                redis.Addr(),
		SignupRateLimitPerMinute: 1,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	body := []byte(`{"username":"alice","password":"Str0ngPass!xyz"}`)
	resp1, err := http.Post(srv.URL+"/api/auth/signup", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("first signup failed: %v", err)
	}
	resp1.Body.Close()
	if resp1.StatusCode != http.StatusCreated {
		t.Fatalf("first signup expected 201, got %d", resp1.StatusCode)
	}

	body2 := []byte(`{"username":"bob","password":"Str0ngPass!xyz"}`)
	resp2, err := http.Post(srv.URL+"/api/auth/signup", "application/json", bytes.NewReader(body2))
	if err != nil {
		t.Fatalf("second signup failed: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second signup expected 429, got %d", resp2.StatusCode)
	}
	if resp2.Header.Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on limited response")
	}
}

func TestServerRequiresRedisForLimiters(t *testing.T) {
	appCore, err := app.New(app.Config{
		Store:    store.NewMemoryStore(),
		Sessions: store.NewJWTSessionStore("test-secret", time.Hour),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if _, err := New(Config{App: appCore}); err == nil {
		t.Fatal("expected limiter initialization to fail without redis addr")
	}
}
