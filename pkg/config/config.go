// Package config provides unified configuration for the dirigent gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (DIRIGENT_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the dirigent gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Provider      ProviderConfig      `yaml:"provider"`
	Engine        EngineConfig        `yaml:"engine"`
	Safety        SafetyConfig        `yaml:"safety"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	MCP           MCPConfig           `yaml:"mcp"`
	Tools         ToolsConfig         `yaml:"tools"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 120s
	MaxBodySize  int64         `yaml:"max_body_size"` // bytes, default: 10MiB
}

// ProviderConfig selects and configures the inference backend.
type ProviderConfig struct {
	Type         string            `yaml:"type"`          // "vllm", "litellm", or "responses", default: "vllm"
	BackendURL   string            `yaml:"backend_url"`   // required
	APIKey       string            `yaml:"api_key"`       // optional
	APIKeyFile   string            `yaml:"api_key_file"`  // _file variant for api_key
	Timeout      time.Duration     `yaml:"timeout"`       // default: 120s
	ModelMapping map[string]string `yaml:"model_mapping"` // litellm only
}

// EngineConfig holds orchestration loop settings.
type EngineConfig struct {
	DefaultModel      string `yaml:"default_model"`       // optional
	MaxInferIters     int    `yaml:"max_infer_iters"`     // default: 10
	StoreInBackground bool   `yaml:"store_in_background"` // default: false
	StoreWorkers      int    `yaml:"store_workers"`       // default: 4
}

// SafetyConfig holds the moderation backend and the named checks requests
// may reference as guardrails.
type SafetyConfig struct {
	BackendURL   string              `yaml:"backend_url"`   // empty disables the gate
	APIKey       string              `yaml:"api_key"`       // optional
	APIKeyFile   string              `yaml:"api_key_file"`  // _file variant for api_key
	DefaultModel string              `yaml:"default_model"` // moderation model fallback
	Timeout      time.Duration       `yaml:"timeout"`       // default: 30s
	Checks       []SafetyCheckConfig `yaml:"checks"`
	OutputChecks []string            `yaml:"output_checks"` // check ids run over final output
}

// SafetyCheckConfig registers one named guardrail check.
type SafetyCheckConfig struct {
	ID             string `yaml:"id"`
	Model          string `yaml:"model"`
	RefusalMessage string `yaml:"refusal_message"`
}

// StorageConfig holds state management settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type    string         `yaml:"type"`     // "none", "apikey", or "jwt", default: "none"
	APIKeys []APIKeyConfig `yaml:"api_keys"` // API key entries for type=apikey
	JWT     JWTConfig      `yaml:"jwt"`      // settings for type=jwt
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" json:"subject"`
	TenantID    string `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// JWTConfig holds JWT bearer token validation settings.
type JWTConfig struct {
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	JWKSURL     string        `yaml:"jwks_url"` // required for type=jwt
	UserClaim   string        `yaml:"user_claim"`
	TenantClaim string        `yaml:"tenant_claim"`
	ScopesClaim string        `yaml:"scopes_claim"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// MCPConfig holds MCP (Model Context Protocol) server settings.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes a single statically-configured MCP server.
type MCPServerConfig struct {
	Name         string            `yaml:"name" json:"name"`
	Transport    string            `yaml:"transport" json:"transport"` // "sse" or "streamable-http"
	URL          string            `yaml:"url" json:"url"`
	Headers      map[string]string `yaml:"headers" json:"headers"`
	AllowedTools []string          `yaml:"allowed_tools" json:"allowed_tools"`
	Auth         MCPAuthConfig     `yaml:"auth" json:"auth"`
}

// MCPAuthConfig configures dynamic authentication for an MCP server.
type MCPAuthConfig struct {
	Type             string   `yaml:"type" json:"type"` // "oauth_client_credentials" or empty
	TokenURL         string   `yaml:"token_url" json:"token_url"`
	ClientID         string   `yaml:"client_id" json:"client_id"`
	ClientIDFile     string   `yaml:"client_id_file" json:"client_id_file"`         // _file variant for client_id
	ClientSecret     string   `yaml:"client_secret" json:"client_secret"`           // avoid; prefer client_secret_file
	ClientSecretFile string   `yaml:"client_secret_file" json:"client_secret_file"` // _file variant for client_secret
	Scopes           []string `yaml:"scopes" json:"scopes"`
}

// ToolsConfig enables the built-in tool providers.
type ToolsConfig struct {
	FileSearch BuiltinToolConfig `yaml:"file_search"`
	WebSearch  BuiltinToolConfig `yaml:"web_search"`
}

// BuiltinToolConfig holds the enablement flag and provider-specific
// settings for one built-in tool.
type BuiltinToolConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			MaxBodySize:  10 << 20,
		},
		Provider: ProviderConfig{
			Type:    "vllm",
			Timeout: 120 * time.Second,
		},
		Engine: EngineConfig{
			MaxInferIters: 10,
			StoreWorkers:  4,
		},
		Safety: SafetyConfig{
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			Type: "none",
			JWT: JWTConfig{
				CacheTTL: time.Hour,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
