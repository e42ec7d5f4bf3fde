package observability

import (
	"net/http"
	"strconv"
	"time"
)

// MetricsMiddleware records request count, latency, and active streaming
// connections for every request passing through it. Counters are labeled
// with the method and a status class ("2xx", "4xx", "5xx"); the model
// label stays "unknown" at this layer since the body is not parsed here.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if wantsSSE(r) {
			StreamingConnections.Inc()
			defer StreamingConnections.Dec()
		}

		capture := &statusCapture{ResponseWriter: w}
		next.ServeHTTP(capture, r)

		const model = "unknown"
		RequestsTotal.WithLabelValues(r.Method, statusClass(capture.Status()), model).Inc()
		RequestDuration.WithLabelValues(r.Method, model).Observe(time.Since(start).Seconds())
	})
}

func wantsSSE(r *http.Request) bool {
	return r.Header.Get("Accept") == "text/event-stream"
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// statusCapture remembers the first status code written. Later calls to
// WriteHeader still reach the underlying writer, matching net/http's
// superfluous-WriteHeader behavior, but do not change the recorded code.
type statusCapture struct {
	http.ResponseWriter
	code int
}

// Status returns the recorded status code, defaulting to 200 when the
// handler never called WriteHeader.
func (c *statusCapture) Status() int {
	if c.code == 0 {
		return http.StatusOK
	}
	return c.code
}

func (c *statusCapture) WriteHeader(code int) {
	if c.code == 0 {
		c.code = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *statusCapture) Write(b []byte) (int, error) {
	if c.code == 0 {
		c.code = http.StatusOK
	}
	return c.ResponseWriter.Write(b)
}

// Flush keeps SSE streaming working through the wrapper.
func (c *statusCapture) Flush() {
	if f, ok := c.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (c *statusCapture) Unwrap() http.ResponseWriter {
	return c.ResponseWriter
}
