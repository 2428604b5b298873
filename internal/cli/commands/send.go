package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lvyanru/hitl-chat/internal/cli/types"
	"github.com/lvyanru/hitl-chat/internal/cli/ui"
)

var (
	sendThread  string
	sendNew     bool
	sendContext map[string]string
	sendInvoke  bool
)

// sendCmd is the send command
var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "send one message and print the reply",
	Example: `  # Continue the last thread
  $ hitlctl send "what time is it in UTC?"

  # New thread with request context
  $ hitlctl send --new --context user=alice "/set theme=dark"

  # Wait for the whole reply instead of streaming
  $ hitlctl send --invoke "hello"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendThread, "thread", "t", "", "thread to continue (default: the last one)")
	sendCmd.Flags().BoolVar(&sendNew, "new", false, "start a new thread")
	sendCmd.Flags().StringToStringVar(&sendContext, "context", nil, "context entries for a new thread (key=value)")
	sendCmd.Flags().BoolVar(&sendInvoke, "invoke", false, "use the non-streaming endpoint")
	sendCmd.SilenceUsage = true
}

func runSend(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	req := types.ChatRequest{
		Messages: []types.UIMessage{types.TextMessage(strings.Join(args, " "))},
	}
	if !sendNew {
		req.ThreadID = sendThread
		if req.ThreadID == "" {
			req.ThreadID = s.cfg.ThreadID
		}
	}
	if len(sendContext) > 0 {
		req.Context = make(map[string]any, len(sendContext))
		for k, v := range sendContext {
			req.Context[k] = v
		}
	}

	if sendInvoke {
		return invoke(ctx, s, req)
	}

	res, err := s.stream(ctx, cmd.OutOrStdout(), req)
	if err != nil {
		ui.PrintError("stream failed: %v", err)
		return fmt.Errorf("send failed")
	}
	if res.failed {
		return fmt.Errorf("the run ended with an error")
	}
	return nil
}

func invoke(ctx context.Context, s *session, req types.ChatRequest) error {
	res, err := s.client.Invoke(ctx, req)
	if err != nil {
		ui.PrintError("invoke failed: %v", err)
		return fmt.Errorf("send failed")
	}
	s.rememberThread(res.ThreadID)

	if res.Content != "" {
		fmt.Println(res.Content)
	}
	if res.Approval != nil {
		ui.PrintPendingApproval(ui.Output, res.ThreadID, res.Approval)
	}
	if res.Error != "" {
		ui.PrintError("%s", res.Error)
		return fmt.Errorf("the run ended with an error")
	}
	return nil
}
