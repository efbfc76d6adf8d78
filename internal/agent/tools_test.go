package agent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolRegistryOrder(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(echoTool{})
	reg.Register(failTool{})

	defs := reg.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "echo", defs[0].Name)
	assert.Equal(t, "fail", defs[1].Name)
	assert.Equal(t, "Echoes the input back.", defs[0].Description)

	tool, ok := reg.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", tool.Name())

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestToolRegistryReregister(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(echoTool{})
	reg.Register(echoTool{})

	assert.Len(t, reg.Definitions(), 1)
}

func TestSessionLocksSerialize(t *testing.T) {
	locks := newSessionLocks()

	var mu sync.Mutex
	held := map[string]int{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("s1")
			defer unlock()

			mu.Lock()
			held["s1"]++
			assert.Equal(t, 1, held["s1"])
			mu.Unlock()

			mu.Lock()
			held["s1"]--
			mu.Unlock()
		}()
	}
	wg.Wait()

	// All references were released; the entry is reclaimed.
	locks.mu.Lock()
	assert.Empty(t, locks.entries)
	locks.mu.Unlock()
}

func TestSessionLocksIndependent(t *testing.T) {
	locks := newSessionLocks()

	unlockA := locks.lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := locks.lock("b")
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}

func TestBuildSystemPromptIncludesTools(t *testing.T) {
	prompt := BuildSystemPrompt(PromptConfig{
		AgentName: "Parley",
		Model:     "test-model",
		Tools: []ToolDef{
			{Name: "echo", Description: "Echoes the input back.", InputSchema: `{"type":"object"}`},
		},
	})

	assert.Contains(t, prompt, "Parley")
	assert.Contains(t, prompt, "## Available Tools")
	assert.Contains(t, prompt, "echo")
	assert.Contains(t, prompt, "tool_call")
}

func TestBuildSystemPromptNoTools(t *testing.T) {
	prompt := BuildSystemPrompt(PromptConfig{AgentName: "Parley", Model: "test-model"})
	assert.NotContains(t, prompt, "## Available Tools")
}
