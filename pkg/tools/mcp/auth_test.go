package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// tokenEndpoint serves the client_credentials grant, counting calls and
// failing every call after the first failAfter successes (0 = never).
func tokenEndpoint(t *testing.T, token string, expiresIn, failAfter int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)

		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/x-www-form-urlencoded" {
			http.Error(w, "bad request shape", http.StatusBadRequest)
			return
		}
		if r.ParseForm() != nil || r.FormValue("grant_type") != "client_credentials" {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		if failAfter > 0 && int(n) > failAfter {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": token,
			"token_type":   "bearer",
			"expires_in":   expiresIn,
		})
	}))
	return srv, calls
}

func TestClientCredentials_MintAndCache(t *testing.T) {
	srv, calls := tokenEndpoint(t, "tok-1", 3600, 0)
	defer srv.Close()

	cc := NewClientCredentials(srv.URL, "client", "secret", nil)

	for i := 0; i < 3; i++ {
		headers, err := cc.Headers(context.Background())
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if got := headers["Authorization"]; got != "Bearer tok-1" {
			t.Fatalf("Authorization = %q, want Bearer tok-1", got)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("token endpoint called %d times, want 1 (token not cached)", got)
	}
}

func TestClientCredentials_RenewsEarly(t *testing.T) {
	// 10s lifetime renews at 8s.
	srv, calls := tokenEndpoint(t, "tok-renew", 10, 0)
	defer srv.Close()

	cc := NewClientCredentials(srv.URL, "client", "secret", nil)
	start := time.Now()
	cc.now = func() time.Time { return start }

	if _, err := cc.Headers(context.Background()); err != nil {
		t.Fatal(err)
	}

	cc.now = func() time.Time { return start.Add(9 * time.Second) }
	if _, err := cc.Headers(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := calls.Load(); got != 2 {
		t.Errorf("token endpoint called %d times, want 2 (early renewal)", got)
	}
}

func TestClientCredentials_RenewFailureKeepsValidToken(t *testing.T) {
	srv, _ := tokenEndpoint(t, "tok-sticky", 10, 1)
	defer srv.Close()

	cc := NewClientCredentials(srv.URL, "client", "secret", nil)
	start := time.Now()
	cc.now = func() time.Time { return start }

	if _, err := cc.Headers(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Past the renewal point but inside the token's lifetime.
	cc.now = func() time.Time { return start.Add(9 * time.Second) }
	headers, err := cc.Headers(context.Background())
	if err != nil {
		t.Fatalf("renewal failure with live token should not error: %v", err)
	}
	if headers["Authorization"] != "Bearer tok-sticky" {
		t.Errorf("Authorization = %q, want cached token", headers["Authorization"])
	}

	// Once the token itself expires, the failure surfaces.
	cc.now = func() time.Time { return start.Add(11 * time.Second) }
	if _, err := cc.Headers(context.Background()); err == nil {
		t.Error("expired token plus failed renewal should error")
	}
}

func TestClientCredentials_EndpointRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClientCredentials(srv.URL, "bad", "creds", nil).Headers(context.Background())
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %v, want status 401 surfaced", err)
	}
}

func TestClientCredentials_MissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"token_type":"bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	_, err := NewClientCredentials(srv.URL, "c", "s", nil).Headers(context.Background())
	if err == nil || !strings.Contains(err.Error(), "access_token") {
		t.Errorf("error = %v, want missing access_token", err)
	}
}

func TestClientCredentials_ConcurrentCallsShareOneToken(t *testing.T) {
	srv, calls := tokenEndpoint(t, "tok-conc", 3600, 0)
	defer srv.Close()

	cc := NewClientCredentials(srv.URL, "client", "secret", nil)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			headers, err := cc.Headers(context.Background())
			if err != nil {
				errs <- err
				return
			}
			if headers["Authorization"] != "Bearer tok-conc" {
				errs <- fmt.Errorf("got %q", headers["Authorization"])
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("token endpoint called %d times, want 1", got)
	}
}

func TestClientCredentials_ScopeParameter(t *testing.T) {
	tests := []struct {
		name      string
		scopes    []string
		wantScope string
		wantSent  bool
	}{
		{"scopes joined with spaces", []string{"read", "write", "admin"}, "read write admin", true},
		{"nil scopes omit the parameter", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotScope string
			var sent bool
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				r.ParseForm()
				_, sent = r.Form["scope"]
				gotScope = r.FormValue("scope")
				fmt.Fprint(w, `{"access_token":"tok","expires_in":3600}`)
			}))
			defer srv.Close()

			cc := NewClientCredentials(srv.URL, "c", "s", tt.scopes)
			if _, err := cc.Headers(context.Background()); err != nil {
				t.Fatal(err)
			}
			if sent != tt.wantSent || gotScope != tt.wantScope {
				t.Errorf("scope sent=%v value=%q, want sent=%v value=%q", sent, gotScope, tt.wantSent, tt.wantScope)
			}
		})
	}
}
