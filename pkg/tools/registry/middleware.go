package registry

import (
	"net/http"
	"strconv"
	"time"
)

// wrapRoute adds per-route request count and duration metrics around a
// provider handler.
func wrapRoute(providerName string, route Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		route.Handler.ServeHTTP(rec, r)

		builtinAPIRequests.WithLabelValues(
			providerName, r.Method, route.Pattern, strconv.Itoa(rec.Status())).Inc()
		builtinAPIDuration.WithLabelValues(
			providerName, r.Method, route.Pattern).Observe(time.Since(start).Seconds())
	}
}

// statusRecorder remembers the first status code written to the
// response. An untouched recorder reports 200, matching net/http's
// implicit WriteHeader.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *statusRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
