package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/api"
)

// Middleware wraps a ResponseCreator with cross-cutting behavior. The
// first middleware in a chain is the outermost wrapper.
type Middleware func(ResponseCreator) ResponseCreator

// Chain composes middleware left to right: Chain(a, b, c) produces
// a(b(c(handler))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next ResponseCreator) ResponseCreator {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type requestIDKeyType struct{}

var requestIDKey = requestIDKeyType{}

// RequestIDFromContext returns the request ID carried by the context,
// or "" when none is set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// Recovery converts handler panics into server errors so one bad
// request cannot take the server down.
func Recovery() Middleware {
	return func(next ResponseCreator) ResponseCreator {
		return ResponseCreatorFunc(func(ctx context.Context, req *api.CreateResponseRequest, w ResponseWriter) (retErr error) {
			defer func() {
				if r := recover(); r != nil {
					retErr = api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.CreateResponse(ctx, req, w)
		})
	}
}

// RequestID assigns each request a unique ID unless the context already
// carries one (the HTTP adapter sets it from X-Request-ID). Retrieve it
// with RequestIDFromContext.
func RequestID() Middleware {
	return func(next ResponseCreator) ResponseCreator {
		return ResponseCreatorFunc(func(ctx context.Context, req *api.CreateResponseRequest, w ResponseWriter) error {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, newRequestID())
			}
			return next.CreateResponse(ctx, req, w)
		})
	}
}

func newRequestID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Logging emits one structured entry per request with the request ID,
// model, stream flag, and duration. HTTP method, path, and status are
// not visible at this level; the adapter logs those.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ResponseCreator) ResponseCreator {
		return ResponseCreatorFunc(func(ctx context.Context, req *api.CreateResponseRequest, w ResponseWriter) error {
			start := time.Now()
			err := next.CreateResponse(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("model", req.Model),
				slog.Bool("stream", req.Stream),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.LogAttrs(ctx, slog.LevelError, "request failed", append(attrs, slog.String("error", err.Error()))...)
				return err
			}
			logger.LogAttrs(ctx, slog.LevelInfo, "request completed", attrs...)
			return nil
		})
	}
}
