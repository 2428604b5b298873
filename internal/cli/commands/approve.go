package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/lvyanru/hitl-chat/internal/cli/types"
	"github.com/lvyanru/hitl-chat/internal/cli/ui"
)

// decisionFlags flags shared by approve and reject
type decisionFlags struct {
	thread     string
	toolCallID string
	toolName   string
	yes        bool
}

var (
	approveFlags decisionFlags
	rejectFlags  decisionFlags
)

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "approve the pending tool call of a thread",
	Example: `  # Approve the pending call of the last thread
  $ hitlctl approve

  # Skip the confirmation prompt
  $ hitlctl approve --thread 0b6c... --yes`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDecision(cmd, &approveFlags, true)
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject",
	Short: "reject the pending tool call of a thread",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDecision(cmd, &rejectFlags, false)
	},
}

func init() {
	for _, c := range []struct {
		cmd   *cobra.Command
		flags *decisionFlags
	}{{approveCmd, &approveFlags}, {rejectCmd, &rejectFlags}} {
		c.cmd.Flags().StringVarP(&c.flags.thread, "thread", "t", "", "thread of the pending call (default: the last one)")
		c.cmd.Flags().StringVar(&c.flags.toolCallID, "tool-call-id", "", "tool call to decide on (default: the pending one)")
		c.cmd.Flags().StringVar(&c.flags.toolName, "tool-name", "", "tool name of --tool-call-id")
		c.cmd.Flags().BoolVarP(&c.flags.yes, "yes", "y", false, "skip the confirmation prompt")
		c.cmd.SilenceUsage = true
	}
}

func runDecision(cmd *cobra.Command, flags *decisionFlags, approved bool) error {
	s, err := openSession()
	if err != nil {
		return err
	}

	threadID, err := s.threadFor(flags.thread)
	if err != nil {
		ui.PrintError("%v", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pending := &types.Approval{ToolCallID: flags.toolCallID, ToolName: flags.toolName}
	if pending.ToolCallID == "" || pending.ToolName == "" {
		th, err := s.client.GetThread(ctx, threadID)
		if err != nil {
			ui.PrintError("failed to load thread %s: %v", threadID, err)
			return fmt.Errorf("thread lookup failed")
		}
		if th.PendingApproval == nil {
			ui.PrintWarning("thread %s has no pending approval", threadID)
			return fmt.Errorf("nothing to decide")
		}
		if pending.ToolCallID == "" {
			pending = th.PendingApproval
		} else if pending.ToolName == "" {
			pending.ToolName = th.PendingApproval.ToolName
		}
	}

	verb := "Approve"
	if !approved {
		verb = "Reject"
	}

	if !flags.yes {
		confirmed := false
		prompt := &survey.Confirm{
			Message: fmt.Sprintf("%s %s?", verb, ui.FormatApproval(pending)),
			Default: approved,
		}
		if err := survey.AskOne(prompt, &confirmed); err != nil {
			ui.PrintError("failed to read confirmation: %v", err)
			return fmt.Errorf("input failed")
		}
		if !confirmed {
			ui.PrintInfo("cancelled, the call is still pending")
			return nil
		}
	}

	req := types.ChatRequest{
		ThreadID: threadID,
		Messages: []types.UIMessage{types.DecisionMessage(pending.ToolCallID, pending.ToolName, approved)},
	}
	res, err := s.stream(ctx, cmd.OutOrStdout(), req)
	if err != nil {
		ui.PrintError("stream failed: %v", err)
		return fmt.Errorf("%s failed", verb)
	}
	if res.failed {
		return fmt.Errorf("the run ended with an error")
	}
	return nil
}
