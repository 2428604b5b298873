package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/lvyanru/hitl-chat/internal/cli/client"
	"github.com/lvyanru/hitl-chat/internal/cli/config"
	"github.com/lvyanru/hitl-chat/internal/cli/types"
	"github.com/lvyanru/hitl-chat/internal/cli/ui"
)

// session the loaded CLI config and a client for its server
type session struct {
	cfg    *config.Config
	client *client.APIClient
}

func openSession() (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		ui.PrintError("failed to load config: %v", err)
		return nil, fmt.Errorf("config load failed")
	}

	server := cfg.Server
	if serverFlag != "" {
		server = serverFlag
	}

	apiClient, err := client.NewAPIClient(server)
	if err != nil {
		ui.PrintError("failed to create client: %v", err)
		return nil, fmt.Errorf("client creation failed")
	}

	return &session{cfg: cfg, client: apiClient}, nil
}

// rememberThread saves threadID as the thread of the last conversation
func (s *session) rememberThread(threadID string) {
	if threadID == "" || threadID == s.cfg.ThreadID {
		return
	}
	s.cfg.ThreadID = threadID
	if err := s.cfg.Save(); err != nil {
		ui.PrintWarning("failed to save thread id: %v", err)
	}
}

// threadFor picks the explicit thread, or the saved one
func (s *session) threadFor(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if s.cfg.ThreadID == "" {
		return "", fmt.Errorf("no thread given and no previous thread saved; pass --thread")
	}
	return s.cfg.ThreadID, nil
}

// streamResult what a streamed turn ended with
type streamResult struct {
	threadID string
	pending  *types.Approval
	failed   bool
}

// stream sends req and prints its events until the server closes the stream
func (s *session) stream(ctx context.Context, out io.Writer, req types.ChatRequest) (*streamResult, error) {
	eventCh, errCh, err := s.client.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	p := &eventPrinter{out: out}
	res := &streamResult{threadID: req.ThreadID}
	for ev := range eventCh {
		p.print(ev)
		switch ev.Type {
		case types.EventSession:
			res.threadID = ev.ThreadID
			s.rememberThread(ev.ThreadID)
		case types.EventApprovalRequested:
			res.pending = &types.Approval{ToolCallID: ev.ToolCallID, ToolName: ev.ToolName, Args: ev.Args}
		case types.EventError:
			res.failed = true
		}
	}
	p.endLine()

	if err := <-errCh; err != nil {
		return res, err
	}
	return res, nil
}

var (
	dimColor  = color.New(color.Faint)
	failColor = color.New(color.FgRed, color.Bold)
)

// eventPrinter writes stream events as a plain transcript
type eventPrinter struct {
	out      io.Writer
	threadID string
	midLine  bool
}

func (p *eventPrinter) print(ev types.StreamEvent) {
	switch ev.Type {
	case types.EventSession:
		p.threadID = ev.ThreadID

	case types.EventTextDelta:
		fmt.Fprint(p.out, ev.Content)
		p.midLine = !strings.HasSuffix(ev.Content, "\n")

	case types.EventToolCall:
		p.line(dimColor.Sprintf("→ %s %s", ev.ToolName, ui.FormatValue(ev.Args)))

	case types.EventToolResult:
		p.line(dimColor.Sprintf("← %s %s", ev.ToolName, ui.FormatValue(ev.Result)))

	case types.EventApprovalRequested:
		p.endLine()
		ui.PrintPendingApproval(p.out, p.threadID, &types.Approval{ToolCallID: ev.ToolCallID, ToolName: ev.ToolName, Args: ev.Args})

	case types.EventFinish:
		if usage := ui.FormatUsage(ev.Usage); usage != "" {
			p.line(dimColor.Sprint(usage))
		}

	case types.EventStatus:
		p.line(dimColor.Sprintf("[%s] %s", ev.Code, ev.Message))

	case types.EventError:
		p.line(failColor.Sprintf("✗ %s", ev.Message))
	}
}

func (p *eventPrinter) line(s string) {
	p.endLine()
	fmt.Fprintln(p.out, s)
}

func (p *eventPrinter) endLine() {
	if p.midLine {
		fmt.Fprintln(p.out)
		p.midLine = false
	}
}
