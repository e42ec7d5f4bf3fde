package apikey

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dirigent-dev/dirigent/pkg/auth"
)

func newTestAuthenticator() *Authenticator {
	return New([]Credential{
		{
			Key: "sk-alice-1",
			Identity: auth.Identity{
				Subject:     "alice",
				ServiceTier: "pro",
				Metadata:    map[string]string{"tenant_id": "org-1"},
			},
		},
		{
			Key:      "sk-bob-2",
			Identity: auth.Identity{Subject: "bob"},
		},
	})
}

func request(header string) *http.Request {
	r := httptest.NewRequest("POST", "/v1/responses", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return r
}

func TestAuthenticate(t *testing.T) {
	a := newTestAuthenticator()

	tests := []struct {
		name        string
		header      string
		want        auth.Decision
		wantSubject string
	}{
		{"known key", "Bearer sk-alice-1", auth.Allow, "alice"},
		{"second key", "Bearer sk-bob-2", auth.Allow, "bob"},
		{"unknown key", "Bearer sk-mallory", auth.Deny, ""},
		{"empty bearer", "Bearer ", auth.Deny, ""},
		{"no header", "", auth.Skip, ""},
		{"basic auth", "Basic dXNlcjpwYXNz", auth.Skip, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := a.Authenticate(context.Background(), request(tt.header))
			if res.Decision != tt.want {
				t.Fatalf("decision = %d, want %d", res.Decision, tt.want)
			}
			if tt.want == auth.Allow && (res.Identity == nil || res.Identity.Subject != tt.wantSubject) {
				t.Errorf("identity = %+v, want subject %q", res.Identity, tt.wantSubject)
			}
		})
	}
}

func TestIdentityCarriesTierAndTenant(t *testing.T) {
	a := newTestAuthenticator()
	res := a.Authenticate(context.Background(), request("Bearer sk-alice-1"))
	if res.Decision != auth.Allow {
		t.Fatalf("decision = %d, want Allow", res.Decision)
	}
	if res.Identity.ServiceTier != "pro" {
		t.Errorf("tier = %q, want pro", res.Identity.ServiceTier)
	}
	if res.Identity.TenantID() != "org-1" {
		t.Errorf("tenant = %q, want org-1", res.Identity.TenantID())
	}
}

func TestIdentityCopiedPerRequest(t *testing.T) {
	a := newTestAuthenticator()

	first := a.Authenticate(context.Background(), request("Bearer sk-bob-2"))
	first.Identity.Subject = "mutated"

	second := a.Authenticate(context.Background(), request("Bearer sk-bob-2"))
	if second.Identity.Subject != "bob" {
		t.Errorf("subject = %q, identity escaped the authenticator", second.Identity.Subject)
	}
}
