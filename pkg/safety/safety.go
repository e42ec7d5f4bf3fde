package safety

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrUnknownCheck is returned when a request references a check id that is
// not registered on the gate.
var ErrUnknownCheck = errors.New("unknown safety check")

// DefaultRefusalMessage is used when a check has no refusal message configured.
const DefaultRefusalMessage = "I can't help with that."

// ModerationResult is the backend's verdict on a piece of text.
type ModerationResult struct {
	Flagged    bool
	Categories []string
}

// Backend runs moderation over text. Implementations must be safe for
// concurrent use by multiple in-flight responses.
type Backend interface {
	Moderate(ctx context.Context, text, model string) (*ModerationResult, error)
}

// CheckConfig registers one named check on the gate.
type CheckConfig struct {
	// ID is the identifier requests use to select this check.
	ID string `yaml:"id"`

	// Model is the moderation model passed to the backend.
	Model string `yaml:"model"`

	// RefusalMessage is the text returned to the client when this check
	// flags content. Defaults to DefaultRefusalMessage.
	RefusalMessage string `yaml:"refusal_message"`
}

// Violation reports the first check that flagged the input.
type Violation struct {
	CheckID    string
	Categories []string
	Message    string
}

// Gate evaluates registered checks against text. The zero-value Gate has no
// checks registered and rejects every check id.
type Gate struct {
	backend Backend
	checks  map[string]CheckConfig
}

// NewGate creates a Gate over the given backend and check registrations.
func NewGate(backend Backend, checks []CheckConfig) *Gate {
	m := make(map[string]CheckConfig, len(checks))
	for _, c := range checks {
		m[c.ID] = c
	}
	return &Gate{backend: backend, checks: m}
}

// Resolve verifies that every id names a registered check. It is called
// during request validation so that a typo fails before inference starts.
func (g *Gate) Resolve(ids []string) error {
	for _, id := range ids {
		if g == nil {
			return fmt.Errorf("%w: %q (no safety gate configured)", ErrUnknownCheck, id)
		}
		if _, ok := g.checks[id]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCheck, id)
		}
	}
	return nil
}

// Check runs the named checks over the given texts in declared order.
// Empty ids or empty input yield no violation without contacting the
// backend. The first violation wins; its configured refusal message
// supplies the client-visible text.
func (g *Gate) Check(ctx context.Context, texts []string, ids []string) (*Violation, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	joined := strings.TrimSpace(strings.Join(texts, "\n"))
	if joined == "" {
		return nil, nil
	}

	for _, id := range ids {
		cfg, ok := g.checks[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCheck, id)
		}

		result, err := g.backend.Moderate(ctx, joined, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("safety check %q: %w", id, err)
		}

		if result.Flagged {
			slog.Info("safety check flagged content",
				"check", id,
				"categories", strings.Join(result.Categories, ","),
			)
			msg := cfg.RefusalMessage
			if msg == "" {
				msg = DefaultRefusalMessage
			}
			return &Violation{
				CheckID:    id,
				Categories: result.Categories,
				Message:    msg,
			}, nil
		}
	}

	return nil, nil
}

// CheckText runs the named checks over a single text.
func (g *Gate) CheckText(ctx context.Context, text string, ids []string) (*Violation, error) {
	return g.Check(ctx, []string{text}, ids)
}
