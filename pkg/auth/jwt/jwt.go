// Package jwt authenticates OIDC bearer tokens. Signatures are verified
// against RSA keys fetched from a JWKS endpoint and cached with a TTL;
// issuer, audience, and the claims used for subject, tenant, and scopes
// are configurable.
package jwt

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/dirigent-dev/dirigent/pkg/auth"
)

// Config holds the JWT authenticator configuration.
type Config struct {
	// Issuer is the expected iss claim. Empty disables issuer validation.
	Issuer string

	// Audience is the expected aud claim. Empty disables audience validation.
	Audience string

	// JWKSURL locates the JSON Web Key Set used for signature verification.
	JWKSURL string

	// UserClaim names the claim carrying the subject. Default "sub".
	UserClaim string

	// TenantClaim names the claim carrying the tenant id. Default "tenant_id".
	TenantClaim string

	// ScopesClaim names the claim carrying scopes, either a space-separated
	// string or a JSON array. Default "scope".
	ScopesClaim string

	// CacheTTL bounds how long fetched JWKS keys are reused. Default 1h.
	CacheTTL time.Duration

	// HTTPClient fetches the JWKS. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// Authenticator validates JWT bearer tokens.
type Authenticator struct {
	cfg  Config
	keys *keyStore
}

// New creates a JWT authenticator.
func New(cfg Config) *Authenticator {
	cfg.applyDefaults()
	return &Authenticator{
		cfg: cfg,
		keys: &keyStore{
			byKid:  make(map[string]*rsa.PublicKey),
			ttl:    cfg.CacheTTL,
			url:    cfg.JWKSURL,
			client: cfg.HTTPClient,
		},
	}
}

// Authenticate validates the request's bearer token as a JWT. Requests
// without a Bearer credential are skipped; a present but invalid token
// (bad signature, expired, wrong issuer or audience, missing subject)
// is denied.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.Result {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return auth.Result{Decision: auth.Skip}
	}

	raw := strings.TrimPrefix(header, "Bearer ")
	if raw == "" {
		return auth.Result{Decision: auth.Deny, Err: fmt.Errorf("empty bearer token")}
	}

	token, err := jwtlib.Parse(raw, a.signingKey(ctx), a.parserOptions()...)
	if err != nil {
		slog.Debug("JWT validation failed", "error", err)
		return auth.Result{Decision: auth.Deny, Err: fmt.Errorf("invalid JWT: %w", err)}
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return auth.Result{Decision: auth.Deny, Err: fmt.Errorf("invalid JWT claims")}
	}

	subject := stringClaim(claims, a.cfg.UserClaim)
	if subject == "" {
		return auth.Result{
			Decision: auth.Deny,
			Err:      fmt.Errorf("JWT missing %q claim", a.cfg.UserClaim),
		}
	}

	identity := &auth.Identity{
		Subject:  subject,
		Scopes:   scopesFrom(claims, a.cfg.ScopesClaim),
		Metadata: make(map[string]string),
	}
	if tenant := stringClaim(claims, a.cfg.TenantClaim); tenant != "" {
		identity.Metadata["tenant_id"] = tenant
	}

	return auth.Result{Decision: auth.Allow, Identity: identity}
}

// signingKey returns the key lookup callback for the JWT parser: it
// requires an RSA signing method and resolves the token's kid through
// the JWKS cache.
func (a *Authenticator) signingKey(ctx context.Context) jwtlib.Keyfunc {
	return func(token *jwtlib.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwtlib.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token missing kid header")
		}

		key, err := a.keys.lookup(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("fetching JWKS key for kid %q: %w", kid, err)
		}
		return key, nil
	}
}

func (a *Authenticator) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(a.cfg.Audience))
	}
	return opts
}

// stringClaim returns the named claim as a string, or "" when absent or
// of another type.
func stringClaim(claims jwtlib.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

// scopesFrom reads the scopes claim, accepting both the OAuth
// space-separated string form and a JSON array of strings.
func scopesFrom(claims jwtlib.MapClaims, name string) []string {
	switch v := claims[name].(type) {
	case string:
		if fields := strings.Fields(v); len(fields) > 0 {
			return fields
		}
	case []interface{}:
		var scopes []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				scopes = append(scopes, s)
			}
		}
		if len(scopes) > 0 {
			return scopes
		}
	}
	return nil
}

// keyStore caches RSA public keys from a JWKS endpoint. Lookups hit the
// cache under a read lock; a miss or expired cache triggers one refetch
// under the write lock.
type keyStore struct {
	mu        sync.RWMutex
	byKid     map[string]*rsa.PublicKey
	fetchedAt time.Time
	ttl       time.Duration
	url       string
	client    *http.Client
}

func (s *keyStore) lookup(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	s.mu.RLock()
	if key, ok := s.byKid[kid]; ok && time.Since(s.fetchedAt) < s.ttl {
		s.mu.RUnlock()
		return key, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if key, ok := s.byKid[kid]; ok && time.Since(s.fetchedAt) < s.ttl {
		return key, nil
	}

	if err := s.refresh(ctx); err != nil {
		return nil, err
	}

	key, ok := s.byKid[kid]
	if !ok {
		return nil, fmt.Errorf("key %q not found in JWKS", kid)
	}
	return key, nil
}

// refresh refetches the JWKS. Caller holds the write lock.
func (s *keyStore) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("creating JWKS request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading JWKS response: %w", err)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("parsing JWKS: %w", err)
	}

	byKid := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		pub, err := rsaPublicKey(k)
		if err != nil {
			slog.Warn("skipping JWKS key", "kid", k.Kid, "error", err)
			continue
		}
		byKid[k.Kid] = pub
	}

	s.byKid = byKid
	s.fetchedAt = time.Now()

	slog.Debug("JWKS cache refreshed", "keys", len(byKid), "url", s.url)
	return nil
}

// jwk is one JSON Web Key; only the RSA fields the gateway needs.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"` // modulus, base64url
	E   string `json:"e"` // public exponent, base64url
}

func rsaPublicKey(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() {
		return nil, fmt.Errorf("RSA exponent too large")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(e.Int64()),
	}, nil
}
