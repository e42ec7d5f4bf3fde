// Command server runs the dirigent responses gateway.
//
// Configuration is layered: built-in defaults, a YAML config file
// (-config flag, DIRIGENT_CONFIG env, ./config.yaml, or
// /etc/dirigent/config.yaml), and DIRIGENT_* environment overrides.
// See pkg/config for the full schema.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/auth"
	"github.com/dirigent-dev/dirigent/pkg/auth/apikey"
	jwtauth "github.com/dirigent-dev/dirigent/pkg/auth/jwt"
	"github.com/dirigent-dev/dirigent/pkg/config"
	"github.com/dirigent-dev/dirigent/pkg/debug"
	"github.com/dirigent-dev/dirigent/pkg/engine"
	"github.com/dirigent-dev/dirigent/pkg/observability"
	"github.com/dirigent-dev/dirigent/pkg/provider"
	"github.com/dirigent-dev/dirigent/pkg/provider/litellm"
	"github.com/dirigent-dev/dirigent/pkg/provider/responses"
	"github.com/dirigent-dev/dirigent/pkg/provider/vllm"
	"github.com/dirigent-dev/dirigent/pkg/safety"
	"github.com/dirigent-dev/dirigent/pkg/storage"
	"github.com/dirigent-dev/dirigent/pkg/storage/memory"
	"github.com/dirigent-dev/dirigent/pkg/storage/postgres"
	"github.com/dirigent-dev/dirigent/pkg/tools"
	"github.com/dirigent-dev/dirigent/pkg/tools/builtins/filesearch"
	"github.com/dirigent-dev/dirigent/pkg/tools/builtins/websearch"
	"github.com/dirigent-dev/dirigent/pkg/tools/mcp"
	"github.com/dirigent-dev/dirigent/pkg/tools/registry"
	"github.com/dirigent-dev/dirigent/pkg/transport"
	transporthttp "github.com/dirigent-dev/dirigent/pkg/transport/http"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	debug.Init("", "")

	prov, err := buildProvider(cfg)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	defer prov.Close()

	store, convs, closeStore, err := buildStorage(cfg)
	if err != nil {
		return fmt.Errorf("creating storage: %w", err)
	}
	defer closeStore()

	gate, err := buildSafetyGate(cfg)
	if err != nil {
		return fmt.Errorf("creating safety gate: %w", err)
	}

	mcpExec := buildMCPExecutor(cfg)
	builtins, err := buildBuiltins(cfg)
	if err != nil {
		return fmt.Errorf("creating builtin tools: %w", err)
	}

	executors := []tools.ToolExecutor{mcpExec}
	if builtins.HasProviders() {
		executors = append(executors, builtins)
		defer builtins.Close()
	}

	eng, err := engine.New(prov, engine.Config{
		DefaultModel:      cfg.Engine.DefaultModel,
		MaxInferIters:     cfg.Engine.MaxInferIters,
		OutputChecks:      cfg.Safety.OutputChecks,
		StoreInBackground: cfg.Engine.StoreInBackground,
		StoreWorkers:      cfg.Engine.StoreWorkers,
	}, engine.Options{
		Store:         store,
		Conversations: convs,
		Gate:          gate,
		Executors:     executors,
		MCP:           mcpExec,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer eng.Close()

	adapter := transporthttp.NewAdapter(eng, transporthttp.Backends{
		Store:         store,
		Conversations: convs,
		Models:        prov,
	}, transporthttp.Config{
		Addr:            fmt.Sprintf(":%d", cfg.Server.Port),
		MaxBodySize:     cfg.Server.MaxBodySize,
		ShutdownTimeout: 30,
	}, transport.RequestID())

	mux := http.NewServeMux()
	mux.Handle("/", adapter.Handler())
	if builtins.HasProviders() {
		// Provider management APIs (vector store CRUD and friends) are
		// mounted under /v1/tools/.
		mux.Handle("/v1/tools/", http.StripPrefix("/v1/tools", builtins.HTTPHandler()))
	}

	handler := wireMiddleware(mux, cfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting",
			"port", cfg.Server.Port,
			"provider", cfg.Provider.Type,
			"backend", cfg.Provider.BackendURL,
			"model", cfg.Engine.DefaultModel,
			"storage", cfg.Storage.Type,
			"auth", cfg.Auth.Type,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// buildProvider creates the inference backend adapter named by the config.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	switch cfg.Provider.Type {
	case "litellm":
		return litellm.New(litellm.Config{
			BaseURL:      cfg.Provider.BackendURL,
			APIKey:       cfg.Provider.APIKey,
			Timeout:      cfg.Provider.Timeout,
			ModelMapping: cfg.Provider.ModelMapping,
		})
	case "responses":
		return responses.New(responses.Config{
			BaseURL: cfg.Provider.BackendURL,
			APIKey:  cfg.Provider.APIKey,
			Timeout: cfg.Provider.Timeout,
		})
	default:
		return vllm.New(vllm.Config{
			BaseURL: cfg.Provider.BackendURL,
			APIKey:  cfg.Provider.APIKey,
			Timeout: cfg.Provider.Timeout,
		})
	}
}

// buildStorage creates the response and conversation stores. The memory
// and postgres stores serve both roles; type "none" disables persistence
// and with it chaining and conversations.
func buildStorage(cfg *config.Config) (storage.ResponseStore, storage.ConversationStore, func(), error) {
	switch cfg.Storage.Type {
	case "postgres":
		pg, err := postgres.New(context.Background(), postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		slog.Info("storage enabled", "type", "postgres", "max_conns", cfg.Storage.Postgres.MaxConns)
		return pg, pg, func() { _ = pg.Close() }, nil
	case "none":
		slog.Info("storage disabled")
		return nil, nil, func() {}, nil
	default:
		mem := memory.New(cfg.Storage.MaxSize)
		slog.Info("storage enabled", "type", "memory", "max_size", cfg.Storage.MaxSize)
		return mem, mem, func() {}, nil
	}
}

// buildSafetyGate creates the guardrail gate, or nil when no moderation
// backend is configured.
func buildSafetyGate(cfg *config.Config) (*safety.Gate, error) {
	if cfg.Safety.BackendURL == "" {
		return nil, nil
	}

	backend, err := safety.NewModerationClient(safety.ModerationConfig{
		BaseURL:      cfg.Safety.BackendURL,
		APIKey:       cfg.Safety.APIKey,
		DefaultModel: cfg.Safety.DefaultModel,
		Timeout:      cfg.Safety.Timeout,
	})
	if err != nil {
		return nil, err
	}

	checks := make([]safety.CheckConfig, len(cfg.Safety.Checks))
	for i, c := range cfg.Safety.Checks {
		checks[i] = safety.CheckConfig{
			ID:             c.ID,
			Model:          c.Model,
			RefusalMessage: c.RefusalMessage,
		}
	}
	slog.Info("safety gate enabled", "backend", cfg.Safety.BackendURL, "checks", len(checks))
	return safety.NewGate(backend, checks), nil
}

// buildMCPExecutor creates the MCP executor seeded with the statically
// configured servers. Request-scoped servers are added at runtime via
// EnsureServer.
func buildMCPExecutor(cfg *config.Config) *mcp.MCPExecutor {
	clients := make(map[string]*mcp.MCPClient, len(cfg.MCP.Servers))
	for _, srv := range cfg.MCP.Servers {
		clients[srv.Name] = mcp.NewMCPClient(mcp.ServerConfig{
			Name:         srv.Name,
			Transport:    srv.Transport,
			URL:          srv.URL,
			Headers:      srv.Headers,
			AllowedTools: srv.AllowedTools,
			Auth: mcp.AuthConfig{
				Type:         srv.Auth.Type,
				TokenURL:     srv.Auth.TokenURL,
				ClientID:     srv.Auth.ClientID,
				ClientSecret: srv.Auth.ClientSecret,
				Scopes:       srv.Auth.Scopes,
			},
		})
		slog.Info("mcp server configured", "name", srv.Name, "url", srv.URL)
	}
	return mcp.NewMCPExecutor(clients)
}

// buildBuiltins creates the builtin tool registry from the enabled
// providers.
func buildBuiltins(cfg *config.Config) (*registry.FunctionRegistry, error) {
	reg := registry.New()

	if cfg.Tools.FileSearch.Enabled {
		p, err := filesearch.New(cfg.Tools.FileSearch.Settings)
		if err != nil {
			return nil, fmt.Errorf("file_search: %w", err)
		}
		reg.Register(p)
	}
	if cfg.Tools.WebSearch.Enabled {
		p, err := websearch.New(cfg.Tools.WebSearch.Settings)
		if err != nil {
			return nil, fmt.Errorf("web_search: %w", err)
		}
		reg.Register(p)
	}
	return reg, nil
}

// wireMiddleware applies metrics and authentication around the mux.
func wireMiddleware(mux http.Handler, cfg *config.Config) http.Handler {
	chain := buildAuthChain(cfg)
	bypass := []string{"/healthz"}
	if cfg.Observability.Metrics.Enabled {
		bypass = append(bypass, cfg.Observability.Metrics.Path)
	}

	handler := auth.Middleware(chain, nil, bypass)(mux)
	return observability.MetricsMiddleware(handler)
}

// buildAuthChain assembles the authenticator chain for the configured
// auth type. Type "none" accepts everything with an anonymous identity.
func buildAuthChain(cfg *config.Config) *auth.Chain {
	switch cfg.Auth.Type {
	case "apikey":
		creds := make([]apikey.Credential, len(cfg.Auth.APIKeys))
		for i, k := range cfg.Auth.APIKeys {
			creds[i] = apikey.Credential{
				Key: k.Key,
				Identity: auth.Identity{
					Subject:     k.Subject,
					ServiceTier: k.ServiceTier,
					Metadata:    map[string]string{"tenant_id": k.TenantID},
				},
			}
		}
		return &auth.Chain{
			Authenticators: []auth.Authenticator{apikey.New(creds)},
			Fallback:       auth.Deny,
		}
	case "jwt":
		return &auth.Chain{
			Authenticators: []auth.Authenticator{jwtauth.New(jwtauth.Config{
				Issuer:      cfg.Auth.JWT.Issuer,
				Audience:    cfg.Auth.JWT.Audience,
				JWKSURL:     cfg.Auth.JWT.JWKSURL,
				UserClaim:   cfg.Auth.JWT.UserClaim,
				TenantClaim: cfg.Auth.JWT.TenantClaim,
				ScopesClaim: cfg.Auth.JWT.ScopesClaim,
				CacheTTL:    cfg.Auth.JWT.CacheTTL,
			})},
			Fallback: auth.Deny,
		}
	default:
		return &auth.Chain{Fallback: auth.Allow}
	}
}
