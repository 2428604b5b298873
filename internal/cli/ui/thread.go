package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
	"github.com/mattn/go-runewidth"

	"github.com/lvyanru/hitl-chat/internal/cli/types"
)

const contentWidth = 72

var (
	threadStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)  // Cyan
	roleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))             // Blue
	keyStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))            // Gray
	valueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))            // Yellow
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true) // Pink
)

// RenderThread renders a thread checkpoint as a tree
func RenderThread(th *types.Thread) string {
	root := tree.Root(threadStyle.Render("Thread " + th.ThreadID))

	if th.UpdatedAt != "" {
		root.Child(keyStyle.Render("updated: ") + valueStyle.Render(th.UpdatedAt))
	}

	messages := tree.Root(keyStyle.Render(fmt.Sprintf("messages (%d)", len(th.Messages))))
	for _, m := range th.Messages {
		messages.Child(renderMessage(m))
	}
	root.Child(messages)

	if len(th.Context) > 0 {
		ctxNode := tree.Root(keyStyle.Render("context"))
		keys := make([]string, 0, len(th.Context))
		for k := range th.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			ctxNode.Child(keyStyle.Render(k+": ") + valueStyle.Render(FormatValue(th.Context[k])))
		}
		root.Child(ctxNode)
	}

	if th.PendingApproval != nil {
		root.Child(highlightStyle.Render("pending approval: ") + FormatApproval(th.PendingApproval))
	}

	return root.String()
}

func renderMessage(m types.ThreadMessage) string {
	label := roleStyle.Render(m.Role)
	switch {
	case len(m.ToolCalls) > 0:
		calls := make([]string, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			calls[i] = fmt.Sprintf("%s(%s)", tc.Name, tc.Arguments)
		}
		return label + " " + keyStyle.Render("calls ") + Truncate(strings.Join(calls, ", "), contentWidth)
	case m.ToolCallID != "":
		return label + " " + keyStyle.Render("["+m.ToolCallID+"] ") + Truncate(m.Content, contentWidth)
	default:
		return label + " " + Truncate(m.Content, contentWidth)
	}
}

// FormatApproval one-line description of a pending tool call
func FormatApproval(a *types.Approval) string {
	return fmt.Sprintf("%s %s (%s)", highlightStyle.Render(a.ToolName), FormatValue(a.Args), a.ToolCallID)
}

// FormatValue renders a JSON value compactly
func FormatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// Truncate shortens s to width display cells, flattening newlines
func Truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return runewidth.Truncate(s, width, "…")
}
