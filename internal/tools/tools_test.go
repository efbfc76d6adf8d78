package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockDefaultsToUTC(t *testing.T) {
	clk := NewClockTool()
	clk.now = func() time.Time {
		return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	}

	out, err := clk.Execute(context.Background(), "{}")
	require.NoError(t, err)
	assert.Equal(t, "Friday, March 14, 2025 at 09:26:53 UTC", out)
}

func TestClockTimezone(t *testing.T) {
	clk := NewClockTool()
	clk.now = func() time.Time {
		return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	}

	out, err := clk.Execute(context.Background(), `{"timezone": "America/New_York"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "05:00:00")

	_, err = clk.Execute(context.Background(), `{"timezone": "Nowhere/Fake"}`)
	require.Error(t, err)
}

func TestClockEmptyInput(t *testing.T) {
	clk := NewClockTool()
	_, err := clk.Execute(context.Background(), "")
	assert.NoError(t, err)
}

func TestCalculator(t *testing.T) {
	calc := NewCalculatorTool()

	cases := []struct {
		expr string
		want string
	}{
		{"2 + 3", "5"},
		{"2 + 3 * 4", "14"},
		{"(2 + 3) * 4", "20"},
		{"10 / 4", "2.5"},
		{"-5 + 3", "-2"},
		{"2 ^ 10", "1024"},
		{"2 ^ 3 ^ 2", "512"},
		{"10 % 3", "1"},
		{"1.5 * 2", "3"},
		{"--3", "3"},
	}
	for _, tc := range cases {
		out, err := calc.Execute(context.Background(), `{"expression": "`+tc.expr+`"}`)
		require.NoError(t, err, "expr %q", tc.expr)
		assert.Equal(t, tc.want, out, "expr %q", tc.expr)
	}
}

func TestCalculatorErrors(t *testing.T) {
	calc := NewCalculatorTool()

	for _, expr := range []string{
		"1 / 0",
		"10 % 0",
		"(1 + 2",
		"2 +",
		"abc",
		"1 2",
		"",
	} {
		_, err := calc.Execute(context.Background(), `{"expression": "`+expr+`"}`)
		assert.Error(t, err, "expr %q", expr)
	}

	_, err := calc.Execute(context.Background(), "not json")
	assert.Error(t, err)
}
