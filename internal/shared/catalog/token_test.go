package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

func newLoginServer(t *testing.T, logins *int32, token string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected login request: %s %s", r.Method, r.URL.Path)
		}
		var creds map[string]string
		json.NewDecoder(r.Body).Decode(&creds)
		if creds["username"] != "bot" || creds["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		atomic.AddInt32(logins, 1)
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	}))
}

func TestTokenProviderCachesToken(t *testing.T) {
	var logins int32
	srv := newLoginServer(t, &logins, "tok-1")
	defer srv.Close()

	p := NewTokenProvider(srv.URL+"/auth/login", "bot", "secret")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		auth, err := p.AuthHeader(ctx)
		if err != nil {
			t.Fatalf("AuthHeader: %v", err)
		}
		if auth != "Bearer tok-1" {
			t.Fatalf("auth = %q, want Bearer tok-1", auth)
		}
	}

	if n := atomic.LoadInt32(&logins); n != 1 {
		t.Errorf("logins = %d, want 1 (cached)", n)
	}
}

func TestTokenProviderConcurrentSingleLogin(t *testing.T) {
	var logins int32
	srv := newLoginServer(t, &logins, "tok-2")
	defer srv.Close()

	p := NewTokenProvider(srv.URL+"/auth/login", "bot", "secret")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.AuthHeader(ctx); err != nil {
				t.Errorf("AuthHeader: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&logins); n != 1 {
		t.Errorf("logins = %d, want 1 (double-checked lock)", n)
	}
}

func TestTokenProviderInvalidateForcesRelogin(t *testing.T) {
	var logins int32
	srv := newLoginServer(t, &logins, "tok-3")
	defer srv.Close()

	p := NewTokenProvider(srv.URL+"/auth/login", "bot", "secret")
	ctx := context.Background()

	if _, err := p.AuthHeader(ctx); err != nil {
		t.Fatalf("AuthHeader: %v", err)
	}
	p.Invalidate()
	if _, err := p.AuthHeader(ctx); err != nil {
		t.Fatalf("AuthHeader after invalidate: %v", err)
	}

	if n := atomic.LoadInt32(&logins); n != 2 {
		t.Errorf("logins = %d, want 2", n)
	}
}

func TestTokenProviderAcceptsAccessTokenField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"accessToken": "alt-tok"})
	}))
	defer srv.Close()

	p := NewTokenProvider(srv.URL, "bot", "secret")
	auth, err := p.AuthHeader(context.Background())
	if err != nil {
		t.Fatalf("AuthHeader: %v", err)
	}
	if auth != "Bearer alt-tok" {
		t.Errorf("auth = %q, want Bearer alt-tok", auth)
	}
}

func TestTokenProviderNotConfigured(t *testing.T) {
	p := NewTokenProvider("", "", "")
	if _, err := p.AuthHeader(context.Background()); err == nil {
		t.Fatal("expected error for unconfigured provider")
	}
}

func TestTokenExpiryFallback(t *testing.T) {
	// 非JWT格式的token按默认有效期处理
	exp := tokenExpiry("opaque-token")
	if exp.IsZero() {
		t.Fatal("expiry should fall back to default TTL, got zero time")
	}
}
