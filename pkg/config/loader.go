package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load assembles configuration in layers: built-in defaults, then the
// YAML file (explicit path, DIRIGENT_CONFIG, ./config.yaml,
// /etc/dirigent/config.yaml), then DIRIGENT_* environment overrides,
// then _file secret resolution, then validation.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if filePath := discoverConfigFile(configPath); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
		// Fields absent from the YAML keep their defaults.
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// discoverConfigFile returns the first config path that applies: the
// explicit argument, DIRIGENT_CONFIG, then well-known locations that
// exist on disk. Empty means run on defaults alone.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("DIRIGENT_CONFIG"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"config.yaml", "/etc/dirigent/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envString sets dst from the named variable when it is set.
func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

// envInt sets dst from the named variable when it parses as an int.
func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// applyEnvOverrides layers DIRIGENT_* variables over the file config so
// a deployment can override single fields without templating the whole
// YAML.
func applyEnvOverrides(cfg *Config) {
	envString("DIRIGENT_BACKEND_URL", &cfg.Provider.BackendURL)
	envString("DIRIGENT_PROVIDER", &cfg.Provider.Type)
	envString("DIRIGENT_API_KEY", &cfg.Provider.APIKey)
	envString("DIRIGENT_MODEL", &cfg.Engine.DefaultModel)
	envInt("DIRIGENT_MAX_INFER_ITERS", &cfg.Engine.MaxInferIters)
	envInt("DIRIGENT_PORT", &cfg.Server.Port)
	envString("DIRIGENT_STORAGE", &cfg.Storage.Type)
	envInt("DIRIGENT_STORAGE_SIZE", &cfg.Storage.MaxSize)
	envString("DIRIGENT_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)
	envString("DIRIGENT_AUTH_TYPE", &cfg.Auth.Type)
	envString("DIRIGENT_SAFETY_URL", &cfg.Safety.BackendURL)

	// Structured overrides arrive as JSON arrays.
	if v := os.Getenv("DIRIGENT_API_KEYS"); v != "" {
		var keys []APIKeyConfig
		if json.Unmarshal([]byte(v), &keys) == nil && len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}
	if v := os.Getenv("DIRIGENT_MCP_SERVERS"); v != "" {
		var servers []MCPServerConfig
		if json.Unmarshal([]byte(v), &servers) == nil && len(servers) > 0 {
			cfg.MCP.Servers = servers
		}
	}
}

// fileRef is one _file indirection: when the target is still empty and
// the file path is set, the trimmed file content fills the target.
type fileRef struct {
	name string
	path string
	dst  *string
}

func resolveFileReferences(cfg *Config) error {
	refs := []fileRef{
		{"provider.api_key_file", cfg.Provider.APIKeyFile, &cfg.Provider.APIKey},
		{"safety.api_key_file", cfg.Safety.APIKeyFile, &cfg.Safety.APIKey},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
	}
	for i := range cfg.Auth.APIKeys {
		refs = append(refs, fileRef{
			fmt.Sprintf("auth.api_keys[%d].key_file", i),
			cfg.Auth.APIKeys[i].KeyFile,
			&cfg.Auth.APIKeys[i].Key,
		})
	}
	for i := range cfg.MCP.Servers {
		auth := &cfg.MCP.Servers[i].Auth
		refs = append(refs,
			fileRef{fmt.Sprintf("mcp.servers[%d].auth.client_id_file", i), auth.ClientIDFile, &auth.ClientID},
			fileRef{fmt.Sprintf("mcp.servers[%d].auth.client_secret_file", i), auth.ClientSecretFile, &auth.ClientSecret},
		)
	}

	for _, ref := range refs {
		if ref.path == "" || *ref.dst != "" {
			continue
		}
		val, err := readSecretFile(ref.path)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.dst = val
	}
	return nil
}

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
