// Package memory implements bounded per-session conversation history.
package memory

import (
	"time"

	"github.com/soyeahso/parley/internal/domain"
)

// Default bounds applied when a Limits field is zero.
const (
	DefaultMaxMessages = 10
	DefaultMaxTokens   = 4000
)

// Limits bounds a conversation. Limits are not persisted with the
// conversation; they are supplied fresh on every load, so changing them
// takes effect on the next request without migration.
type Limits struct {
	MaxMessages int
	MaxTokens   int
}

func (l Limits) withDefaults() Limits {
	if l.MaxMessages == 0 {
		l.MaxMessages = DefaultMaxMessages
	}
	if l.MaxTokens == 0 {
		l.MaxTokens = DefaultMaxTokens
	}
	return l
}

// Conversation is the bounded, ordered message history for one session.
// It is a working copy: the session store owns the durable form, and a
// fresh copy is loaded for every request.
type Conversation struct {
	sessionID string
	msgs      []domain.Message
	limits    Limits
}

// New creates an empty conversation for the given session.
func New(sessionID string, limits Limits) *Conversation {
	return &Conversation{sessionID: sessionID, limits: limits.withDefaults()}
}

// SessionID returns the owning session id.
func (c *Conversation) SessionID() string { return c.sessionID }

// Add appends a message and immediately re-enforces the bounds. It never
// fails; empty content is legal (a placeholder during streaming).
func (c *Conversation) Add(role, content string, metadata map[string]string) domain.Message {
	msg := domain.NewMessage(role, content, metadata)
	c.msgs = append(c.msgs, msg)
	c.TruncateToFit()
	return msg
}

// Messages returns the retained messages in chronological order. The slice
// is a copy; mutating it does not affect the conversation.
func (c *Conversation) Messages() []domain.Message {
	out := make([]domain.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// Len returns the number of retained messages.
func (c *Conversation) Len() int { return len(c.msgs) }

// TokenCount approximates the token total as ceil(len(content)/4) summed
// over all messages. This is deliberately not a real tokenizer: downstream
// prompt budgeting assumes the chars/4 approximation.
func (c *Conversation) TokenCount() int {
	total := 0
	for _, m := range c.msgs {
		total += (len(m.Content) + 3) / 4
	}
	return total
}

// TruncateToFit drops messages from the oldest end until both bounds hold.
// A single message whose content alone exceeds the token budget is kept
// rather than truncated mid-message, so the token bound may still be
// exceeded when exactly one message remains. Idempotent.
func (c *Conversation) TruncateToFit() {
	max := c.limits.MaxMessages
	for len(c.msgs) > max {
		c.msgs = c.msgs[1:]
	}
	for len(c.msgs) > 1 && c.TokenCount() > c.limits.MaxTokens {
		c.msgs = c.msgs[1:]
	}
}

// Record is the serialized form of one message, as stored by the session
// store. Round-tripping preserves role, content, timestamp and metadata.
type Record struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Records converts the retained messages to their serialized form.
func (c *Conversation) Records() []Record {
	recs := make([]Record, len(c.msgs))
	for i, m := range c.msgs {
		recs[i] = Record{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp,
			Metadata:  m.Metadata,
		}
	}
	return recs
}

// FromRecords reconstructs a conversation from its serialized form and
// re-applies the caller's current limits.
func FromRecords(sessionID string, recs []Record, limits Limits) *Conversation {
	c := New(sessionID, limits)
	for _, r := range recs {
		c.msgs = append(c.msgs, domain.Message{
			Role:      r.Role,
			Content:   r.Content,
			Timestamp: r.Timestamp,
			Metadata:  r.Metadata,
		})
	}
	c.TruncateToFit()
	return c
}
