package memory

import (
	"fmt"
	"strings"
)

// Context rendering formats for ContextString.
const (
	FormatSimple = "simple"
	FormatChat   = "chat"
	FormatXML    = "xml"
)

// ContextString renders the retained messages into a prompt-ready string.
// It is a pure projection with no side effects. Unknown formats fall back
// to the simple rendering.
func (c *Conversation) ContextString(format string) string {
	var b strings.Builder
	switch format {
	case FormatChat:
		for _, m := range c.msgs {
			fmt.Fprintf(&b, "### %s\n%s\n\n", titleRole(m.Role), m.Content)
		}
	case FormatXML:
		for _, m := range c.msgs {
			fmt.Fprintf(&b, "<message role=%q>%s</message>\n", m.Role, escapeXML(m.Content))
		}
	default:
		for _, m := range c.msgs {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}
	return b.String()
}

func titleRole(role string) string {
	if role == "" {
		return ""
	}
	return strings.ToUpper(role[:1]) + role[1:]
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}
