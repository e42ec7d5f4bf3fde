package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// HeaderSource supplies per-request authentication headers for MCP
// server connections.
type HeaderSource interface {
	Headers(ctx context.Context) (map[string]string, error)
}

// ClientCredentials implements HeaderSource with the OAuth 2.0
// client_credentials grant. Tokens are cached and renewed once 80% of
// their lifetime has passed; when a renewal attempt fails while the
// cached token is still valid, the cached token keeps being served.
type ClientCredentials struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scopes       []string

	client *http.Client
	now    func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	renewAt   time.Time
}

var _ HeaderSource = (*ClientCredentials)(nil)

func NewClientCredentials(tokenURL, clientID, clientSecret string, scopes []string) *ClientCredentials {
	return &ClientCredentials{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		scopes:       scopes,
		client:       &http.Client{Timeout: 10 * time.Second},
		now:          time.Now,
	}
}

// Headers returns an Authorization header carrying a Bearer token,
// minting or renewing the token as needed.
func (c *ClientCredentials) Headers(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && now.Before(c.renewAt) {
		return bearerHeader(c.token), nil
	}

	token, lifetime, err := c.requestToken(ctx)
	if err != nil {
		// A failed renewal is tolerable while the old token lives.
		if c.token != "" && now.Before(c.expiresAt) {
			return bearerHeader(c.token), nil
		}
		return nil, fmt.Errorf("acquiring OAuth token: %w", err)
	}

	c.token = token
	c.expiresAt = now.Add(lifetime)
	c.renewAt = now.Add(lifetime * 8 / 10)
	return bearerHeader(c.token), nil
}

func bearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// requestToken performs one client_credentials grant round trip.
func (c *ClientCredentials) requestToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}
	if len(c.scopes) > 0 {
		form.Set("scope", strings.Join(c.scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &grant); err != nil {
		return "", 0, fmt.Errorf("parsing token response: %w", err)
	}
	if grant.AccessToken == "" {
		return "", 0, fmt.Errorf("token response missing access_token")
	}

	return grant.AccessToken, time.Duration(grant.ExpiresIn) * time.Second, nil
}
