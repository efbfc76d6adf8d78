package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/soyeahso/parley/internal/agent"
	"github.com/soyeahso/parley/internal/config"
	"github.com/soyeahso/parley/internal/llm"
	"github.com/soyeahso/parley/internal/memory"
	"github.com/soyeahso/parley/internal/session"
	"github.com/soyeahso/parley/internal/tools"
)

// loadConfig reads and validates the config file.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	issues := config.Validate(&cfg)
	if len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}

// buildRegistry creates the provider registry from config.
func buildRegistry(cfg config.Config) *llm.Registry {
	registry := llm.NewRegistry(log)

	var client llm.Client
	provider := cfg.Model.Provider
	switch provider {
	case "openai-compat":
		client = llm.NewOpenAICompatClient(cfg.Model.BaseURL, cfg.Model.APIKey, cfg.Model.Name)
	default:
		provider = "ollama"
		client = llm.NewOllamaClient(cfg.Model.BaseURL, cfg.Model.Name)
	}

	registry.Register(provider, client)
	registry.Alias(cfg.Model.Name, provider)
	registry.SetFallback(provider)
	return registry
}

// buildStore creates the session store selected by config. The returned
// close func is a no-op for backends without resources to release.
func buildStore(ctx context.Context, cfg config.Config) (session.Store, func(), error) {
	ttl := time.Duration(cfg.Session.IdleMinutes) * time.Minute
	limits := memory.Limits{
		MaxMessages: cfg.Session.MaxMessages,
		MaxTokens:   cfg.Session.MaxTokens,
	}

	switch cfg.Session.Store {
	case "redis":
		store, err := session.NewRedisStore(ctx, session.RedisOptions{
			URL:    cfg.Session.RedisURL,
			Prefix: cfg.Session.Prefix,
			TTL:    ttl,
			Limits: limits,
		}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		log.Info().Msg("using Redis session store")
		return store, func() { store.Close() }, nil

	case "sqlite":
		path := cfg.Session.SQLitePath
		if path == "" {
			path = filepath.Join(paths.Data, "parley.db")
		}
		store, err := session.NewSQLiteStore(session.SQLiteOptions{
			Path:   path,
			Prefix: cfg.Session.Prefix,
			TTL:    ttl,
			Limits: limits,
		}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		log.Info().Str("path", path).Msg("using SQLite session store")
		return store, func() { store.Close() }, nil

	default:
		log.Info().Msg("using in-memory session store")
		return session.NewMemoryStore(ttl, limits), func() {}, nil
	}
}

// buildTools registers the built-in tools enabled in config.
func buildTools(cfg config.Config) *agent.ToolRegistry {
	reg := agent.NewToolRegistry()
	for _, name := range cfg.Agent.Tools {
		switch name {
		case "clock":
			reg.Register(tools.NewClockTool())
		case "calculator":
			reg.Register(tools.NewCalculatorTool())
		default:
			log.Warn().Str("tool", name).Msg("unknown built-in tool in config")
		}
	}
	return reg
}

// newRunner wires an agent runner around the given store.
func newRunner(cfg config.Config, store session.Store) *agent.Runner {
	return agent.NewRunner(
		agent.Config{
			AgentName:         cfg.Agent.Name,
			Model:             cfg.Model.Name,
			MaxTokens:         cfg.Model.MaxTokens,
			Temperature:       cfg.Model.Temperature,
			ExtraPrompt:       cfg.Agent.ExtraPrompt,
			MaxToolIterations: cfg.Agent.MaxToolIterations,
		},
		buildRegistry(cfg),
		store,
		buildTools(cfg),
		log,
	)
}
