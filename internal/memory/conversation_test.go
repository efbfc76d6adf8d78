package memory

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/parley/internal/domain"
)

func TestAddAndOrder(t *testing.T) {
	c := New("s1", Limits{})

	c.Add(domain.RoleUser, "My name is Max", nil)
	c.Add(domain.RoleAssistant, "Nice to meet you, Max", nil)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "My name is Max", msgs[0].Content)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)

	wantTokens := (len("My name is Max")+3)/4 + (len("Nice to meet you, Max")+3)/4
	assert.Equal(t, wantTokens, c.TokenCount())

	ctx := c.ContextString(FormatSimple)
	first := strings.Index(ctx, "user: My name is Max")
	second := strings.Index(ctx, "assistant: Nice to meet you, Max")
	require.GreaterOrEqual(t, first, 0)
	require.Greater(t, second, first)
}

func TestAddEmptyContent(t *testing.T) {
	c := New("s1", Limits{})
	c.Add(domain.RoleAssistant, "", nil)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 0, c.TokenCount())
}

func TestTruncateByMessageCount(t *testing.T) {
	c := New("s1", Limits{MaxMessages: 2})

	c.Add(domain.RoleUser, "A", nil)
	c.Add(domain.RoleUser, "B", nil)
	c.Add(domain.RoleUser, "C", nil)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "B", msgs[0].Content)
	assert.Equal(t, "C", msgs[1].Content)
}

func TestTruncateByTokens(t *testing.T) {
	// 25 tokens per 100-char message, budget of 60 tokens → two fit, not three.
	c := New("s1", Limits{MaxMessages: 100, MaxTokens: 60})
	long := strings.Repeat("x", 100)

	c.Add(domain.RoleUser, long, nil)
	c.Add(domain.RoleUser, long, nil)
	c.Add(domain.RoleUser, long, nil)

	assert.Equal(t, 2, c.Len())
	assert.LessOrEqual(t, c.TokenCount(), 60)
}

func TestTruncateKeepsSingleOversizedMessage(t *testing.T) {
	c := New("s1", Limits{MaxMessages: 10, MaxTokens: 10})

	c.Add(domain.RoleUser, "short", nil)
	c.Add(domain.RoleUser, strings.Repeat("y", 400), nil)

	// The oversized newest message survives whole; everything older goes.
	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, 400, len(msgs[0].Content))
	assert.Greater(t, c.TokenCount(), 10)
}

func TestBoundsInvariantUnderRandomAdds(t *testing.T) {
	c := New("s1", Limits{MaxMessages: 5, MaxTokens: 50})

	for i := 0; i < 40; i++ {
		c.Add(domain.RoleUser, strings.Repeat("a", (i*17)%120), nil)
		assert.LessOrEqual(t, c.Len(), 5)
		if c.TokenCount() > 50 {
			assert.Equal(t, 1, c.Len(), "token bound may only be exceeded by a single oversized message")
		}
	}
}

func TestTruncateIdempotent(t *testing.T) {
	c := New("s1", Limits{MaxMessages: 3})
	for i := 0; i < 6; i++ {
		c.Add(domain.RoleUser, fmt.Sprintf("msg %d", i), nil)
	}

	c.TruncateToFit()
	after := c.Messages()
	c.TruncateToFit()
	assert.Equal(t, after, c.Messages())
}

func TestRecordsRoundTrip(t *testing.T) {
	c := New("s1", Limits{})
	c.Add(domain.RoleUser, "hello", map[string]string{"client": "web"})
	c.Add(domain.RoleAssistant, "hi there", nil)
	c.Add(domain.RoleTool, `{"ok":true}`, map[string]string{"tool": "clock"})

	data, err := json.Marshal(c.Records())
	require.NoError(t, err)

	var recs []Record
	require.NoError(t, json.Unmarshal(data, &recs))

	restored := FromRecords("s1", recs, Limits{})
	require.Equal(t, c.Len(), restored.Len())
	for i, want := range c.Messages() {
		got := restored.Messages()[i]
		assert.Equal(t, want.Role, got.Role)
		assert.Equal(t, want.Content, got.Content)
		assert.True(t, want.Timestamp.Equal(got.Timestamp))
		assert.Equal(t, want.Metadata, got.Metadata)
	}
}

func TestFromRecordsAppliesCurrentLimits(t *testing.T) {
	c := New("s1", Limits{MaxMessages: 10})
	for i := 0; i < 6; i++ {
		c.Add(domain.RoleUser, "m", nil)
	}

	// Reload with a tighter bound: truncation happens on load.
	restored := FromRecords("s1", c.Records(), Limits{MaxMessages: 3})
	assert.Equal(t, 3, restored.Len())
}

func TestContextStringFormats(t *testing.T) {
	c := New("s1", Limits{})
	c.Add(domain.RoleUser, "2 < 3 & 4", nil)
	c.Add(domain.RoleAssistant, "yes", nil)

	simple := c.ContextString(FormatSimple)
	assert.Contains(t, simple, "user: 2 < 3 & 4")

	chat := c.ContextString(FormatChat)
	assert.Contains(t, chat, "### User")
	assert.Contains(t, chat, "### Assistant")

	xml := c.ContextString(FormatXML)
	assert.Contains(t, xml, `<message role="user">2 &lt; 3 &amp; 4</message>`)

	// Unknown format falls back to simple.
	assert.Equal(t, simple, c.ContextString("whatever"))
}

func TestMessagesReturnsCopy(t *testing.T) {
	c := New("s1", Limits{})
	c.Add(domain.RoleUser, "original", nil)

	msgs := c.Messages()
	msgs[0].Content = "mutated"
	assert.Equal(t, "original", c.Messages()[0].Content)
}
