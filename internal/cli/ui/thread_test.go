package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lvyanru/hitl-chat/internal/cli/types"
)

func TestRenderThread(t *testing.T) {
	out := RenderThread(&types.Thread{
		ThreadID: "t-1",
		Messages: []types.ThreadMessage{
			{Role: "user", Content: "/set theme=dark"},
			{Role: "assistant", ToolCalls: []types.ToolCall{{ID: "c-1", Name: "set_context", Arguments: `{"key":"theme"}`}}},
		},
		Context:         map[string]any{"b": 2, "a": "x"},
		PendingApproval: &types.Approval{ToolCallID: "c-1", ToolName: "set_context", Args: map[string]any{"key": "theme"}},
	})

	assert.Contains(t, out, "Thread t-1")
	assert.Contains(t, out, "messages (2)")
	assert.Contains(t, out, `set_context({"key":"theme"})`)
	assert.Contains(t, out, "pending approval")
	assert.Less(t, strings.Index(out, "a: "), strings.Index(out, "b: "), "context keys are sorted")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "one two", Truncate("one\ntwo", 20))
	assert.Equal(t, "abcd…", Truncate("abcdefgh", 5))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "plain", FormatValue("plain"))
	assert.Equal(t, `{"ok":true}`, FormatValue(map[string]any{"ok": true}))
}
