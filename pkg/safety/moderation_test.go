package safety

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestModerationClientFlagged(t *testing.T) {
	var gotBody moderationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/moderations" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{
					"flagged": true,
					"categories": map[string]bool{
						"violence":   true,
						"harassment": false,
						"hate":       true,
					},
				},
			},
		})
	}))
	defer srv.Close()

	client, err := NewModerationClient(ModerationConfig{
		BaseURL: srv.URL,
		APIKey:  "sk-test",
	})
	if err != nil {
		t.Fatalf("NewModerationClient: %v", err)
	}

	result, err := client.Moderate(context.Background(), "bad text", "guard-1")
	if err != nil {
		t.Fatalf("Moderate: %v", err)
	}
	if !result.Flagged {
		t.Error("expected flagged result")
	}
	if want := []string{"hate", "violence"}; !reflect.DeepEqual(result.Categories, want) {
		t.Errorf("Categories = %v, want %v", result.Categories, want)
	}
	if gotBody.Model != "guard-1" {
		t.Errorf("request model = %q", gotBody.Model)
	}
	if gotBody.Input != "bad text" {
		t.Errorf("request input = %q", gotBody.Input)
	}
}

func TestModerationClientDefaultModel(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req moderationRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"flagged": false}},
		})
	}))
	defer srv.Close()

	client, err := NewModerationClient(ModerationConfig{
		BaseURL:      srv.URL,
		DefaultModel: "omni-moderation-latest",
	})
	if err != nil {
		t.Fatalf("NewModerationClient: %v", err)
	}

	result, err := client.Moderate(context.Background(), "fine text", "")
	if err != nil {
		t.Fatalf("Moderate: %v", err)
	}
	if result.Flagged {
		t.Error("expected unflagged result")
	}
	if gotModel != "omni-moderation-latest" {
		t.Errorf("model = %q, want default", gotModel)
	}
}

func TestModerationClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewModerationClient(ModerationConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewModerationClient: %v", err)
	}

	if _, err := client.Moderate(context.Background(), "text", "m"); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestModerationClientEmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}))
	defer srv.Close()

	client, err := NewModerationClient(ModerationConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewModerationClient: %v", err)
	}

	if _, err := client.Moderate(context.Background(), "text", "m"); err == nil {
		t.Fatal("expected error for empty results")
	}
}

func TestNewModerationClientRequiresBaseURL(t *testing.T) {
	if _, err := NewModerationClient(ModerationConfig{}); err == nil {
		t.Fatal("expected error for missing BaseURL")
	}
}
