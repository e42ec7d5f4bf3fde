package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestSanitizeProviderError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "model not found with single quotes",
			err:         errors.New("model 'llama-99b' not found"),
			wantCode:    "model_not_found",
			wantMessage: "Requested model 'llama-99b' is unavailable.",
		},
		{
			name:        "model not found with double quotes",
			err:         errors.New(`model "gpt-oss-720b" not found`),
			wantCode:    "model_not_found",
			wantMessage: "Requested model 'gpt-oss-720b' is unavailable.",
		},
		{
			name:        "model not found wrapped in backend noise",
			err:         fmt.Errorf("backend returned 404: model 'x' not found, try again"),
			wantCode:    "model_not_found",
			wantMessage: "Requested model 'x' is unavailable.",
		},
		{
			name:        "connection refused stays generic",
			err:         errors.New("dial tcp 10.0.0.4:8000: connect: connection refused"),
			wantCode:    "server_error",
			wantMessage: genericFailureMessage,
		},
		{
			name:        "internal stack trace stays generic",
			err:         errors.New("panic: runtime error at inference.py:412"),
			wantCode:    "server_error",
			wantMessage: genericFailureMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeProviderError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestSanitizeProviderErrorNeverLeaksRawText(t *testing.T) {
	raw := errors.New("CUDA out of memory on device 3, internal host gpu-node-17.prod")
	got := sanitizeProviderError(raw)
	if got.Message == raw.Error() {
		t.Error("raw backend text leaked into response error")
	}
}

func TestSanitizeProviderErrorNil(t *testing.T) {
	if got := sanitizeProviderError(nil); got != nil {
		t.Errorf("sanitizeProviderError(nil) = %+v, want nil", got)
	}
}
