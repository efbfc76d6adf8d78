package config

// Config is the root configuration for Parley.
type Config struct {
	Server  ServerConfig  `yaml:"server,omitempty"`
	Model   ModelConfig   `yaml:"model,omitempty"`
	Session SessionConfig `yaml:"session,omitempty"`
	Agent   AgentConfig   `yaml:"agent,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// ServerConfig controls the HTTP and WebSocket gateway.
type ServerConfig struct {
	Port           int        `yaml:"port,omitempty"`
	Bind           string     `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string     `yaml:"customBindHost,omitempty"`
	Auth           ServerAuth `yaml:"auth,omitempty"`
	AllowedOrigins []string   `yaml:"allowedOrigins,omitempty"`
}

// ServerAuth configures gateway authentication. An empty token disables
// auth entirely, which is only sensible on loopback.
type ServerAuth struct {
	Token string `yaml:"token,omitempty"`
}

// ModelConfig selects and configures the LLM backend.
type ModelConfig struct {
	Provider    string   `yaml:"provider,omitempty"` // "ollama" | "openai-compat"
	BaseURL     string   `yaml:"baseUrl,omitempty"`
	APIKey      string   `yaml:"apiKey,omitempty"`
	Name        string   `yaml:"name,omitempty"`
	MaxTokens   int      `yaml:"maxTokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// SessionConfig defines where conversation history lives and how much of
// it is kept.
type SessionConfig struct {
	Store       string `yaml:"store,omitempty"` // "redis" | "sqlite" | "memory"
	RedisURL    string `yaml:"redisUrl,omitempty"`
	SQLitePath  string `yaml:"sqlitePath,omitempty"`
	Prefix      string `yaml:"prefix,omitempty"`
	IdleMinutes int    `yaml:"idleMinutes,omitempty"`
	MaxMessages int    `yaml:"maxMessages,omitempty"`
	MaxTokens   int    `yaml:"maxTokens,omitempty"`
}

// AgentConfig defines agent behavior.
type AgentConfig struct {
	Name              string   `yaml:"name,omitempty"`
	ExtraPrompt       string   `yaml:"extraPrompt,omitempty"`
	MaxToolIterations int      `yaml:"maxToolIterations,omitempty"`
	Tools             []string `yaml:"tools,omitempty"` // built-in tool names to enable
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
	File         string `yaml:"file,omitempty"`
}
