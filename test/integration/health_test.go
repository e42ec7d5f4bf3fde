package integration

import (
	"net/http"
	"strings"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	// The health check answers plain GETs with no auth headers at all,
	// so load balancers can probe it.
	req, err := http.NewRequest(http.MethodGet, testEnv.BaseURL()+"/healthz", nil)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 without auth, got %d", resp.StatusCode)
	}
	if body := readBody(t, resp); !strings.Contains(body, "ok") {
		t.Errorf("body = %q, want to contain ok", body)
	}
}
