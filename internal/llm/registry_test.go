package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/parley/internal/logging"
)

func testLog() *logging.Logger {
	return logging.New(nil, "silent", "json")
}

func TestRegistryResolveExact(t *testing.T) {
	reg := NewRegistry(testLog())
	mock := &MockClient{ProviderName: "ollama"}
	reg.Register("ollama", mock)

	c, err := reg.Resolve("ollama")
	require.NoError(t, err)
	assert.Equal(t, "ollama", c.Name())
}

func TestRegistryResolveAlias(t *testing.T) {
	reg := NewRegistry(testLog())
	reg.Register("ollama", &MockClient{ProviderName: "ollama"})
	reg.Alias("llama3", "ollama")

	c, err := reg.Resolve("llama3")
	require.NoError(t, err)
	assert.Equal(t, "ollama", c.Name())
}

func TestRegistryResolveFallback(t *testing.T) {
	reg := NewRegistry(testLog())
	reg.Register("ollama", &MockClient{ProviderName: "ollama"})
	reg.SetFallback("ollama")

	c, err := reg.Resolve("unknown-model")
	require.NoError(t, err)
	assert.Equal(t, "ollama", c.Name())
}

func TestRegistryResolveMiss(t *testing.T) {
	reg := NewRegistry(testLog())
	_, err := reg.Resolve("anything")
	assert.Error(t, err)
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry(testLog())
	reg.Register("a", &MockClient{})
	reg.Register("b", &MockClient{})
	assert.ElementsMatch(t, []string{"a", "b"}, reg.List())
}

func TestProviderError(t *testing.T) {
	err := &ProviderError{Provider: "ollama", Message: "model not found", Code: 404}
	assert.Equal(t, "ollama: 404 model not found", err.Error())

	err = &ProviderError{Provider: "ollama", Message: "boom"}
	assert.Equal(t, "ollama: boom", err.Error())
}
