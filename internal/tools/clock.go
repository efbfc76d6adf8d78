// Package tools provides the built-in tools registered with the agent
// runner by default.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ClockTool reports the current date and time, optionally in a named
// IANA timezone.
type ClockTool struct {
	// now is swappable for tests.
	now func() time.Time
}

// NewClockTool creates a clock tool using the system clock.
func NewClockTool() *ClockTool {
	return &ClockTool{now: time.Now}
}

func (t *ClockTool) Name() string { return "clock" }

func (t *ClockTool) Description() string {
	return "Returns the current date and time. Accepts an optional IANA timezone name such as \"Europe/Berlin\"; defaults to UTC."
}

func (t *ClockTool) InputSchema() string {
	return `{"type": "object", "properties": {"timezone": {"type": "string", "description": "IANA timezone name, e.g. America/New_York"}}}`
}

type clockInput struct {
	Timezone string `json:"timezone"`
}

func (t *ClockTool) Execute(ctx context.Context, input string) (string, error) {
	var in clockInput
	if input != "" {
		if err := json.Unmarshal([]byte(input), &in); err != nil {
			return "", fmt.Errorf("parsing input: %w", err)
		}
	}

	loc := time.UTC
	if in.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(in.Timezone)
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q", in.Timezone)
		}
	}

	now := t.now().In(loc)
	return now.Format("Monday, January 2, 2006 at 15:04:05 MST"), nil
}
