package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/lvyanru/hitl-chat/internal/cli/client"
	"github.com/lvyanru/hitl-chat/internal/cli/ui"
)

var deleteYes bool

var threadCmd = &cobra.Command{
	Use:   "thread",
	Short: "inspect or delete threads",
}

var threadShowCmd = &cobra.Command{
	Use:   "show [thread-id]",
	Short: "show the messages, context and pending approval of a thread",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runThreadShow,
}

var threadDeleteCmd = &cobra.Command{
	Use:   "delete [thread-id]",
	Short: "delete the checkpoint of a thread",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runThreadDelete,
}

func init() {
	threadDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip the confirmation prompt")
	threadShowCmd.SilenceUsage = true
	threadDeleteCmd.SilenceUsage = true

	threadCmd.AddCommand(threadShowCmd)
	threadCmd.AddCommand(threadDeleteCmd)
}

func argOrEmpty(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func runThreadShow(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	threadID, err := s.threadFor(argOrEmpty(args))
	if err != nil {
		ui.PrintError("%v", err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	th, err := s.client.GetThread(ctx, threadID)
	if err != nil {
		if client.IsNotFound(err) {
			ui.PrintWarning("thread %s not found", threadID)
			return fmt.Errorf("thread not found")
		}
		ui.PrintError("failed to load thread: %v", err)
		return fmt.Errorf("thread lookup failed")
	}

	fmt.Fprintln(cmd.OutOrStdout(), ui.RenderThread(th))
	return nil
}

func runThreadDelete(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	threadID, err := s.threadFor(argOrEmpty(args))
	if err != nil {
		ui.PrintError("%v", err)
		return err
	}

	if !deleteYes {
		confirmed := false
		prompt := &survey.Confirm{Message: fmt.Sprintf("Delete thread %s?", threadID)}
		if err := survey.AskOne(prompt, &confirmed); err != nil {
			ui.PrintError("failed to read confirmation: %v", err)
			return fmt.Errorf("input failed")
		}
		if !confirmed {
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.client.DeleteThread(ctx, threadID); err != nil {
		ui.PrintError("failed to delete thread: %v", err)
		return fmt.Errorf("delete failed")
	}

	if s.cfg.ThreadID == threadID {
		s.cfg.ThreadID = ""
		if err := s.cfg.Save(); err != nil {
			ui.PrintWarning("failed to save config: %v", err)
		}
	}

	ui.PrintSuccess("thread %s deleted", threadID)
	return nil
}
