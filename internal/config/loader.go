package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so secrets can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Server.Auth.Token = expandEnvVars(cfg.Server.Auth.Token)
	cfg.Model.APIKey = expandEnvVars(cfg.Model.APIKey)
	cfg.Session.RedisURL = expandEnvVars(cfg.Session.RedisURL)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 18990
	}
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = "loopback"
	}
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = "ollama"
	}
	if cfg.Model.BaseURL == "" {
		cfg.Model.BaseURL = "http://localhost:11434"
	}
	if cfg.Model.Name == "" {
		cfg.Model.Name = "llama3.2"
	}
	if cfg.Session.Store == "" {
		cfg.Session.Store = "memory"
	}
	if cfg.Session.Prefix == "" {
		cfg.Session.Prefix = "parley:session"
	}
	if cfg.Session.IdleMinutes == 0 {
		cfg.Session.IdleMinutes = 60
	}
	if cfg.Session.MaxMessages == 0 {
		cfg.Session.MaxMessages = 10
	}
	if cfg.Session.MaxTokens == 0 {
		cfg.Session.MaxTokens = 4000
	}
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = "Parley"
	}
	if cfg.Agent.MaxToolIterations == 0 {
		cfg.Agent.MaxToolIterations = 5
	}
	if cfg.Agent.Tools == nil {
		cfg.Agent.Tools = []string{"clock", "calculator"}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
}

// applyEnvOverrides reads PARLEY_* environment variables and overrides
// config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PARLEY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PARLEY_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("PARLEY_TOKEN"); v != "" {
		cfg.Server.Auth.Token = v
	}
	if v := os.Getenv("PARLEY_MODEL"); v != "" {
		cfg.Model.Name = v
	}
	if v := os.Getenv("PARLEY_MODEL_BASE_URL"); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := os.Getenv("PARLEY_REDIS_URL"); v != "" {
		cfg.Session.RedisURL = v
		cfg.Session.Store = "redis"
	}
	if v := os.Getenv("PARLEY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}
