// Package debug provides category-based debug logging for dirigent.
//
// Two orthogonal knobs control output. Categories pick WHAT to debug
// and come from DIRIGENT_DEBUG or config; the log level picks HOW MUCH
// detail and comes from DIRIGENT_LOG_LEVEL or config.
//
// Usage:
//
//	debug.Log("providers", "request", "method", "POST", "url", url)
//	if debug.Enabled("providers") { /* expensive formatting */ }
//
// Categories: providers, engine, tools, mcp, safety, auth, transport,
// streaming, config, all. Levels: ERROR, WARN, INFO, DEBUG, TRACE.
package debug

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace sits below slog.LevelDebug. At TRACE, full untruncated
// request and response bodies are logged.
const LevelTrace = slog.LevelDebug - 4

// categories is the set of enabled debug categories. It is written at
// startup (init and Init) and read-only afterwards, so lookups need no
// synchronization.
var categories map[string]bool

func init() {
	// Environment-only bootstrap so debug output works before config
	// is loaded. Init reapplies with config values later.
	categories = parseCategories(os.Getenv("DIRIGENT_DEBUG"))
}

// Init configures the debug system from config, with environment
// variables taking precedence.
func Init(configCategories string, configLevel string) {
	categories = parseCategories(firstNonEmpty(os.Getenv("DIRIGENT_DEBUG"), configCategories))

	level := firstNonEmpty(os.Getenv("DIRIGENT_LOG_LEVEL"), configLevel, "INFO")
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Enabled reports whether debug output is active for the category.
// A single map lookup, zero allocation.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug message for the category, or nothing when the
// category is off.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the category. Visible only
// with DIRIGENT_LOG_LEVEL=TRACE.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(nil, LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether TRACE output is active for the category.
func TraceIsEnabled(category string) bool {
	return Enabled(category) && slog.Default().Enabled(nil, LevelTrace)
}

// Raw writes plain text straight to stderr, bypassing slog formatting.
// Meant for copy-paste-ready output such as full HTTP bodies. Emitted
// only when the category is enabled at TRACE.
func Raw(category string, text string) {
	if !TraceIsEnabled(category) {
		return
	}
	fmt.Fprintln(os.Stderr, text)
}

// ParseLevel converts a level name to a slog.Level. Unknown names fall
// back to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories lists the enabled categories, for health and status
// reporting.
func Categories() []string {
	var out []string
	for c := range categories {
		out = append(out, c)
	}
	return out
}

// Truncate caps s at maxLen characters, appending "..." when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		if cat = strings.TrimSpace(strings.ToLower(cat)); cat != "" {
			m[cat] = true
		}
	}
	return m
}
