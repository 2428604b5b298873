package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/lvyanru/hitl-chat/internal/cli/types"
)

// Output receives the status lines; tests swap it for a buffer
var Output io.Writer = color.Output

var (
	successColor  = color.New(color.FgGreen, color.Bold)
	errorColor    = color.New(color.FgRed, color.Bold)
	warningColor  = color.New(color.FgYellow, color.Bold)
	infoColor     = color.New(color.FgCyan)
	approvalColor = color.New(color.FgMagenta, color.Bold)
	hintColor     = color.New(color.Faint)
)

func printLine(c *color.Color, mark, format string, args ...any) {
	c.Fprintf(Output, "%s %s\n", mark, fmt.Sprintf(format, args...))
}

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...any) { printLine(successColor, "✓", format, args...) }

// PrintError prints an error message
func PrintError(format string, args ...any) { printLine(errorColor, "✗", format, args...) }

// PrintWarning prints a warning message
func PrintWarning(format string, args ...any) { printLine(warningColor, "⚠", format, args...) }

// PrintInfo prints an info message
func PrintInfo(format string, args ...any) { printLine(infoColor, "ℹ", format, args...) }

// PrintPendingApproval writes the approval prompt of a suspended thread and
// the commands that answer it.
func PrintPendingApproval(w io.Writer, threadID string, a *types.Approval) {
	approvalColor.Fprintf(w, "? approval required: %s\n", FormatApproval(a))
	hint := "  run 'hitlctl approve' or 'hitlctl reject'"
	if threadID != "" {
		hint = fmt.Sprintf("  run 'hitlctl approve --thread %s' or 'hitlctl reject --thread %s'", threadID, threadID)
	}
	hintColor.Fprintln(w, hint)
}

// FormatUsage token usage of a finished turn, empty when none was reported
func FormatUsage(u *types.Usage) string {
	if u == nil || (u.PromptTokens == 0 && u.CompletionTokens == 0) {
		return ""
	}
	return fmt.Sprintf("tokens: %d prompt, %d completion", u.PromptTokens, u.CompletionTokens)
}
