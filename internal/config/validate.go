package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "server.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Server.Port),
		})
	}

	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Server.Bind != "" && !slices.Contains(validBinds, cfg.Server.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "server.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Server.Bind),
		})
	}
	if cfg.Server.Bind == "custom" && cfg.Server.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "server.customBindHost",
			Message: "required when bind is custom",
		})
	}
	if cfg.Server.Bind != "loopback" && cfg.Server.Auth.Token == "" {
		issues = append(issues, ValidationIssue{
			Path:    "server.auth.token",
			Message: "required when binding beyond loopback",
		})
	}

	validProviders := []string{"ollama", "openai-compat"}
	if cfg.Model.Provider != "" && !slices.Contains(validProviders, cfg.Model.Provider) {
		issues = append(issues, ValidationIssue{
			Path:    "model.provider",
			Message: fmt.Sprintf("must be one of %v, got %q", validProviders, cfg.Model.Provider),
		})
	}
	if cfg.Model.Name == "" {
		issues = append(issues, ValidationIssue{
			Path:    "model.name",
			Message: "model name is required",
		})
	}

	validStores := []string{"redis", "sqlite", "memory"}
	if cfg.Session.Store != "" && !slices.Contains(validStores, cfg.Session.Store) {
		issues = append(issues, ValidationIssue{
			Path:    "session.store",
			Message: fmt.Sprintf("must be one of %v, got %q", validStores, cfg.Session.Store),
		})
	}
	if cfg.Session.Store == "redis" && cfg.Session.RedisURL == "" {
		issues = append(issues, ValidationIssue{
			Path:    "session.redisUrl",
			Message: "required when store is redis",
		})
	}
	if cfg.Session.IdleMinutes < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "session.idleMinutes",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Session.IdleMinutes),
		})
	}
	if cfg.Session.MaxMessages < 0 || cfg.Session.MaxTokens < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "session",
			Message: "maxMessages and maxTokens must not be negative",
		})
	}

	if cfg.Agent.MaxToolIterations < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "agent.maxToolIterations",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Agent.MaxToolIterations),
		})
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	return issues
}
