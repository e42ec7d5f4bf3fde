package engine

import (
	"fmt"
	"regexp"

	"github.com/dirigent-dev/dirigent/pkg/api"
)

// Recognized backend error shapes. Anything unmatched is replaced
// wholesale so raw backend text never reaches a client.
var modelNotFoundPattern = regexp.MustCompile(`model ['"]?([^'"]+?)['"]? not found`)

const genericFailureMessage = "The response failed due to an internal error."

// sanitizeProviderError maps a raw backend error to the stable code and
// user-safe message embedded in a failed response.
func sanitizeProviderError(err error) *api.ResponseError {
	if err == nil {
		return nil
	}

	if m := modelNotFoundPattern.FindStringSubmatch(err.Error()); m != nil {
		return &api.ResponseError{
			Code:    "model_not_found",
			Message: fmt.Sprintf("Requested model '%s' is unavailable.", m[1]),
		}
	}

	return &api.ResponseError{
		Code:    "server_error",
		Message: genericFailureMessage,
	}
}
