package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fixedAuthn struct {
	result Result
}

func (f *fixedAuthn) Authenticate(_ context.Context, _ *http.Request) Result {
	return f.result
}

func TestChain(t *testing.T) {
	allowAlice := &fixedAuthn{result: Result{Decision: Allow, Identity: &Identity{Subject: "alice"}}}
	deny := &fixedAuthn{result: Result{Decision: Deny, Err: ErrUnauthenticated}}
	skip := &fixedAuthn{result: Result{Decision: Skip}}

	tests := []struct {
		name        string
		chain       *Chain
		want        Decision
		wantSubject string
	}{
		{
			name:        "first allow wins",
			chain:       &Chain{Authenticators: []Authenticator{allowAlice, deny}},
			want:        Allow,
			wantSubject: "alice",
		},
		{
			name:  "first deny wins",
			chain: &Chain{Authenticators: []Authenticator{deny, allowAlice}},
			want:  Deny,
		},
		{
			name:        "skip falls through to allow",
			chain:       &Chain{Authenticators: []Authenticator{skip, allowAlice}},
			want:        Allow,
			wantSubject: "alice",
		},
		{
			name:  "all skip with deny fallback",
			chain: &Chain{Authenticators: []Authenticator{skip, skip}, Fallback: Deny},
			want:  Deny,
		},
		{
			name:        "all skip with allow fallback gives anonymous",
			chain:       &Chain{Authenticators: []Authenticator{skip}, Fallback: Allow},
			want:        Allow,
			wantSubject: "anonymous",
		},
		{
			name:  "empty chain uses fallback",
			chain: &Chain{Fallback: Deny},
			want:  Deny,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/v1/responses", nil)
			res := tt.chain.Authenticate(context.Background(), r)
			if res.Decision != tt.want {
				t.Fatalf("decision = %d, want %d", res.Decision, tt.want)
			}
			if tt.want == Allow {
				if res.Identity == nil || res.Identity.Subject != tt.wantSubject {
					t.Errorf("identity = %+v, want subject %q", res.Identity, tt.wantSubject)
				}
			}
			if tt.want == Deny && res.Err == nil {
				t.Error("deny result should carry an error")
			}
		})
	}
}

func TestIdentityContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if FromContext(ctx) != nil {
		t.Error("empty context should have no identity")
	}

	id := &Identity{Subject: "carol", Metadata: map[string]string{"tenant_id": "t-9"}}
	ctx = WithIdentity(ctx, id)

	got := FromContext(ctx)
	if got == nil || got.Subject != "carol" {
		t.Fatalf("identity = %+v, want carol", got)
	}
	if got.TenantID() != "t-9" {
		t.Errorf("tenant = %q, want t-9", got.TenantID())
	}
}

func TestTenantIDNilSafe(t *testing.T) {
	var id *Identity
	if id.TenantID() != "" {
		t.Error("nil identity should have empty tenant")
	}
	if (&Identity{}).TenantID() != "" {
		t.Error("identity without metadata should have empty tenant")
	}
}
