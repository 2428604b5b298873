package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lvyanru/hitl-chat/internal/cli/tui"
	"github.com/lvyanru/hitl-chat/internal/cli/ui"
)

var (
	chatThread string
	chatNew    bool
)

// chatCmd is the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "start an interactive chat",
	Long: `Start an interactive chat session.

Replies stream as they are generated. When the agent asks to run a tool
that needs approval, press y to approve or n to reject; typing a new
message instead cancels the pending call.`,
	Example: `  # Continue the last thread
  $ hitlctl chat

  # Start over on a new thread
  $ hitlctl chat --new`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatThread, "thread", "t", "", "thread to continue (default: the last one)")
	chatCmd.Flags().BoolVar(&chatNew, "new", false, "start a new thread")
	chatCmd.SilenceUsage = true
}

func runChat(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}

	threadID := chatThread
	if threadID == "" && !chatNew {
		threadID = s.cfg.ThreadID
	}

	program := tui.NewChatProgram(s.client, threadID, s.rememberThread)
	if err := program.Run(); err != nil {
		ui.PrintError("chat ended: %v", err)
		return fmt.Errorf("failed to run chat TUI: %w", err)
	}

	return nil
}
