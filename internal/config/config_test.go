package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 18990, cfg.Server.Port)
	assert.Equal(t, "loopback", cfg.Server.Bind)
	assert.Equal(t, "ollama", cfg.Model.Provider)
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.Equal(t, 10, cfg.Session.MaxMessages)
	assert.Equal(t, 4000, cfg.Session.MaxTokens)
	assert.Equal(t, 5, cfg.Agent.MaxToolIterations)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
model:
  provider: openai-compat
  baseUrl: http://localhost:8080
  name: qwen2.5
session:
  store: sqlite
  sqlitePath: /tmp/parley.db
  maxMessages: 20
agent:
  name: Helper
logging:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "openai-compat", cfg.Model.Provider)
	assert.Equal(t, "qwen2.5", cfg.Model.Name)
	assert.Equal(t, "sqlite", cfg.Session.Store)
	assert.Equal(t, 20, cfg.Session.MaxMessages)
	assert.Equal(t, "Helper", cfg.Agent.Name)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset fields still get defaults.
	assert.Equal(t, "loopback", cfg.Server.Bind)
	assert.Equal(t, 4000, cfg.Session.MaxTokens)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))

	_, err := Load(path)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PARLEY_PORT", "7777")
	t.Setenv("PARLEY_MODEL", "mistral")
	t.Setenv("PARLEY_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PARLEY_LOG_LEVEL", "WARN")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "mistral", cfg.Model.Name)
	assert.Equal(t, "redis", cfg.Session.Store)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Session.RedisURL)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestExpandSensitiveFields(t *testing.T) {
	t.Setenv("TEST_PARLEY_TOKEN", "s3cret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  auth:
    token: ${TEST_PARLEY_TOKEN}
model:
  apiKey: ${UNSET_VAR_XYZ}
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Server.Auth.Token)
	// Unset variables are left untouched.
	assert.Equal(t, "${UNSET_VAR_XYZ}", cfg.Model.APIKey)
}

func TestResolvePathsHonorsHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PARLEY_HOME", dir)

	p, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, dir, p.Base)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), p.Config)

	require.NoError(t, p.EnsureDirs())
	assert.DirExists(t, p.Data)
	assert.DirExists(t, p.Logs)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))

	cfg.Server.Port = 99999
	cfg.Server.Bind = "everywhere"
	cfg.Model.Provider = "psychic"
	cfg.Session.Store = "papyrus"
	cfg.Logging.Level = "shouty"

	issues := Validate(&cfg)
	paths := make([]string, len(issues))
	for i, iss := range issues {
		paths[i] = iss.Path
	}
	assert.Contains(t, paths, "server.port")
	assert.Contains(t, paths, "server.bind")
	assert.Contains(t, paths, "model.provider")
	assert.Contains(t, paths, "session.store")
	assert.Contains(t, paths, "logging.level")
}

func TestValidateRemoteBindNeedsToken(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Bind = "lan"

	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "server.auth.token", issues[0].Path)

	cfg.Server.Auth.Token = "tok"
	assert.Empty(t, Validate(&cfg))
}

func TestValidateRedisNeedsURL(t *testing.T) {
	cfg := Defaults()
	cfg.Session.Store = "redis"

	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "session.redisUrl", issues[0].Path)
}
