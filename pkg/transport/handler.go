package transport

import (
	"context"

	"github.com/dirigent-dev/dirigent/pkg/api"
)

// ResponseCreator is the core handler contract: take a create-response
// request and write the outcome, streamed or complete, to the writer.
// It is the same contract in stateless and stateful deployments.
type ResponseCreator interface {
	CreateResponse(ctx context.Context, req *api.CreateResponseRequest, w ResponseWriter) error
}

// ResponseCreatorFunc lets a plain function serve as a ResponseCreator.
type ResponseCreatorFunc func(ctx context.Context, req *api.CreateResponseRequest, w ResponseWriter) error

func (f ResponseCreatorFunc) CreateResponse(ctx context.Context, req *api.CreateResponseRequest, w ResponseWriter) error {
	return f(ctx, req, w)
}

// ResponseWriter is how a handler emits output. A single writer is
// either streaming or non-streaming, never both: once WriteEvent has
// been called, WriteResponse errors, and vice versa. WriteEvent also
// errors after a terminal event (response.completed, response.incomplete,
// response.failed).
type ResponseWriter interface {
	// WriteEvent sends one streaming event.
	WriteEvent(ctx context.Context, event api.StreamEvent) error

	// WriteResponse sends a complete non-streaming response.
	WriteResponse(ctx context.Context, resp *api.Response) error

	// Flush pushes buffered data to the client. Errors when the client
	// has disconnected.
	Flush() error
}
