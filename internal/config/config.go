// Package config loads, defaults, and validates the Parley configuration
// file.
package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 18990,
			Bind: "loopback",
		},
		Model: ModelConfig{
			Provider: "ollama",
			BaseURL:  "http://localhost:11434",
			Name:     "llama3.2",
		},
		Session: SessionConfig{
			Store:       "memory",
			Prefix:      "parley:session",
			IdleMinutes: 60,
			MaxMessages: 10,
			MaxTokens:   4000,
		},
		Agent: AgentConfig{
			Name:              "Parley",
			MaxToolIterations: 5,
			Tools:             []string{"clock", "calculator"},
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}
