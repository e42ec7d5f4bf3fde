package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// provider.backend_url is required.
	if c.Provider.BackendURL == "" {
		errs = append(errs, fmt.Errorf("provider.backend_url is required"))
	}

	// provider.type must be a known value if set.
	switch c.Provider.Type {
	case "vllm", "litellm", "responses", "":
		// valid
	default:
		errs = append(errs, fmt.Errorf("provider.type must be \"vllm\", \"litellm\", or \"responses\", got %q", c.Provider.Type))
	}

	// server.port must be positive.
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	if c.Engine.MaxInferIters < 0 {
		errs = append(errs, fmt.Errorf("engine.max_infer_iters must be >= 0, got %d", c.Engine.MaxInferIters))
	}

	// storage.type must be a known value.
	switch c.Storage.Type {
	case "memory", "postgres", "none":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\", \"postgres\", or \"none\", got %q", c.Storage.Type))
	}

	// If storage.type is "postgres", DSN or DSNFile must be set.
	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	// auth.type must be a known value.
	switch c.Auth.Type {
	case "none", "apikey", "jwt":
		// valid
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	if c.Auth.Type == "jwt" && c.Auth.JWT.JWKSURL == "" {
		errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
	}

	// Safety checks need ids, and output checks must reference a
	// declared check so a typo fails at startup instead of per-request.
	declared := make(map[string]bool, len(c.Safety.Checks))
	for i, check := range c.Safety.Checks {
		if check.ID == "" {
			errs = append(errs, fmt.Errorf("safety.checks[%d].id is required", i))
			continue
		}
		if declared[check.ID] {
			errs = append(errs, fmt.Errorf("safety.checks[%d].id %q is declared twice", i, check.ID))
		}
		declared[check.ID] = true
	}
	if len(c.Safety.Checks) > 0 && c.Safety.BackendURL == "" {
		errs = append(errs, fmt.Errorf("safety.backend_url is required when safety.checks are declared"))
	}
	for _, id := range c.Safety.OutputChecks {
		if !declared[id] {
			errs = append(errs, fmt.Errorf("safety.output_checks references undeclared check %q", id))
		}
	}

	// MCP servers need a name and a URL.
	for i, srv := range c.MCP.Servers {
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].name is required", i))
		}
		if srv.URL == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].url is required", i))
		}
		switch srv.Transport {
		case "", "sse", "streamable-http":
			// valid
		default:
			errs = append(errs, fmt.Errorf("mcp.servers[%d].transport must be \"sse\" or \"streamable-http\", got %q", i, srv.Transport))
		}
	}

	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with \"/\", got %q", c.Observability.Metrics.Path))
	}

	return errors.Join(errs...)
}
