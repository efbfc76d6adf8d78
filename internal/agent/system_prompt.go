package agent

import (
	"fmt"
	"strings"
	"time"
)

// PromptConfig controls system prompt generation.
type PromptConfig struct {
	AgentName   string
	Model       string
	Tools       []ToolDef
	ExtraPrompt string
}

// BuildSystemPrompt constructs the system prompt for the model, including
// the tool-calling protocol when tools are available.
func BuildSystemPrompt(cfg PromptConfig) string {
	var b strings.Builder

	if cfg.AgentName != "" {
		fmt.Fprintf(&b, "You are %s, a helpful assistant.\n", cfg.AgentName)
	}
	fmt.Fprintf(&b, "Current date: %s\n\n", time.Now().Format("2006-01-02"))

	b.WriteString("Guidelines:\n")
	b.WriteString("- Be concise and accurate.\n")
	b.WriteString("- When using tools, explain what you're doing.\n")

	if len(cfg.Tools) > 0 {
		b.WriteString("\n## Available Tools\n\n")
		b.WriteString("You can call tools by outputting a fenced code block with the language tag `tool_call`:\n\n")
		b.WriteString("```tool_call\n{\"tool\": \"tool_name\", \"input\": {\"param\": \"value\"}}\n```\n\n")
		b.WriteString("After a tool is executed, the result will be provided. You may call multiple tools before giving your final response.\n\n")
		for _, t := range cfg.Tools {
			fmt.Fprintf(&b, "### %s\n%s\n", t.Name, t.Description)
			if t.InputSchema != "" {
				fmt.Fprintf(&b, "Input schema: %s\n", t.InputSchema)
			}
			b.WriteString("\n")
		}
	}

	if cfg.ExtraPrompt != "" {
		b.WriteString("\n")
		b.WriteString(cfg.ExtraPrompt)
		b.WriteString("\n")
	}

	return b.String()
}
