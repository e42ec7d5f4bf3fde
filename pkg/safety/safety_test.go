package safety

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// mockBackend records calls and returns scripted verdicts per model.
type mockBackend struct {
	calls    int
	lastText string
	flag     map[string]bool // model -> flagged
	err      error
}

func (m *mockBackend) Moderate(ctx context.Context, text, model string) (*ModerationResult, error) {
	m.calls++
	m.lastText = text
	if m.err != nil {
		return nil, m.err
	}
	if m.flag[model] {
		return &ModerationResult{Flagged: true, Categories: []string{"violence"}}, nil
	}
	return &ModerationResult{Flagged: false}, nil
}

func TestCheckEmptyIDsSkipsBackend(t *testing.T) {
	backend := &mockBackend{}
	gate := NewGate(backend, []CheckConfig{{ID: "llama-guard", Model: "guard-1"}})

	v, err := gate.Check(context.Background(), []string{"some text"}, nil)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if v != nil {
		t.Errorf("expected no violation, got %+v", v)
	}
	if backend.calls != 0 {
		t.Errorf("backend was called %d times, expected 0", backend.calls)
	}
}

func TestCheckEmptyInputSkipsBackend(t *testing.T) {
	backend := &mockBackend{}
	gate := NewGate(backend, []CheckConfig{{ID: "llama-guard", Model: "guard-1"}})

	v, err := gate.Check(context.Background(), []string{"", "  "}, []string{"llama-guard"})
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if v != nil {
		t.Errorf("expected no violation, got %+v", v)
	}
	if backend.calls != 0 {
		t.Errorf("backend was called %d times, expected 0", backend.calls)
	}
}

func TestCheckUnknownIDHardFails(t *testing.T) {
	gate := NewGate(&mockBackend{}, []CheckConfig{{ID: "llama-guard"}})

	_, err := gate.Check(context.Background(), []string{"text"}, []string{"nope"})
	if !errors.Is(err, ErrUnknownCheck) {
		t.Fatalf("expected ErrUnknownCheck, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	gate := NewGate(&mockBackend{}, []CheckConfig{
		{ID: "llama-guard"},
		{ID: "content-filter"},
	})

	tests := []struct {
		name    string
		ids     []string
		wantErr bool
	}{
		{"all registered", []string{"llama-guard", "content-filter"}, false},
		{"empty", nil, false},
		{"one unknown", []string{"llama-guard", "nsfw-detector"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.Resolve(tt.ids)
			if tt.wantErr && !errors.Is(err, ErrUnknownCheck) {
				t.Errorf("expected ErrUnknownCheck, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestResolveNilGate(t *testing.T) {
	var gate *Gate
	if err := gate.Resolve(nil); err != nil {
		t.Errorf("nil gate with no ids should resolve, got %v", err)
	}
	if err := gate.Resolve([]string{"llama-guard"}); !errors.Is(err, ErrUnknownCheck) {
		t.Errorf("nil gate with ids should fail, got %v", err)
	}
}

func TestCheckFirstViolationWins(t *testing.T) {
	backend := &mockBackend{flag: map[string]bool{"guard-1": true, "guard-2": true}}
	gate := NewGate(backend, []CheckConfig{
		{ID: "first", Model: "guard-1", RefusalMessage: "Refused by first."},
		{ID: "second", Model: "guard-2", RefusalMessage: "Refused by second."},
	})

	v, err := gate.Check(context.Background(), []string{"bad text"}, []string{"first", "second"})
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if v == nil {
		t.Fatal("expected a violation")
	}
	if v.CheckID != "first" {
		t.Errorf("CheckID = %q, want %q", v.CheckID, "first")
	}
	if v.Message != "Refused by first." {
		t.Errorf("Message = %q", v.Message)
	}
	if backend.calls != 1 {
		t.Errorf("backend called %d times, want 1 (stop at first violation)", backend.calls)
	}
}

func TestCheckDefaultRefusalMessage(t *testing.T) {
	backend := &mockBackend{flag: map[string]bool{"guard-1": true}}
	gate := NewGate(backend, []CheckConfig{{ID: "llama-guard", Model: "guard-1"}})

	v, err := gate.Check(context.Background(), []string{"bad text"}, []string{"llama-guard"})
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if v == nil {
		t.Fatal("expected a violation")
	}
	if v.Message != DefaultRefusalMessage {
		t.Errorf("Message = %q, want default", v.Message)
	}
}

func TestCheckBackendErrorPropagates(t *testing.T) {
	backend := &mockBackend{err: fmt.Errorf("connection refused")}
	gate := NewGate(backend, []CheckConfig{{ID: "llama-guard", Model: "guard-1"}})

	_, err := gate.Check(context.Background(), []string{"text"}, []string{"llama-guard"})
	if err == nil {
		t.Fatal("expected error from backend")
	}
}

func TestCheckJoinsTexts(t *testing.T) {
	backend := &mockBackend{}
	gate := NewGate(backend, []CheckConfig{{ID: "llama-guard", Model: "guard-1"}})

	_, err := gate.Check(context.Background(), []string{"one", "two"}, []string{"llama-guard"})
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if backend.lastText != "one\ntwo" {
		t.Errorf("backend saw %q, want joined text", backend.lastText)
	}
}
