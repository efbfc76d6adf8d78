// Package domain holds the core value types shared across the service.
package domain

import "time"

// Role constants for conversation messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Message is a single turn in a conversation. Once appended to a
// conversation it is treated as immutable; streaming drafts live outside the
// conversation until finalized.
type Message struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewMessage creates a message stamped with the current time. The metadata
// map is copied so later caller mutations cannot leak into the message.
func NewMessage(role, content string, metadata map[string]string) Message {
	var md map[string]string
	if len(metadata) > 0 {
		md = make(map[string]string, len(metadata))
		for k, v := range metadata {
			md[k] = v
		}
	}
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  md,
	}
}
