//go:build integration

package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/network/netpoll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvyanru/hitl-chat/internal/agent"
	"github.com/lvyanru/hitl-chat/internal/cli/client"
	"github.com/lvyanru/hitl-chat/internal/cli/types"
	"github.com/lvyanru/hitl-chat/internal/handler"
	"github.com/lvyanru/hitl-chat/internal/infrastructure/checkpoint"
	"github.com/lvyanru/hitl-chat/internal/router"
	"github.com/lvyanru/hitl-chat/internal/usecase"
)

// startServer runs the full stack with the echo model and an in-memory
// checkpoint store, and returns a client for it.
func startServer(t *testing.T) *client.APIClient {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if os.Getenv("HITL_TEST_VERBOSE") != "" {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	ctx := context.Background()
	store := checkpoint.NewMemoryStore(time.Hour)
	t.Cleanup(func() { _ = store.Close() })

	tools, err := agent.DefaultTools()
	require.NoError(t, err)
	runner, err := agent.NewRunner(ctx, agent.NewEchoModel(), tools, store, agent.Options{
		ApprovalTools: []string{agent.SetContextToolName},
	}, logger)
	require.NoError(t, err)

	driver := usecase.NewExecutionDriver(store, runner, logger)
	chatUC := usecase.NewChatUsecase(driver, store, usecase.ChatOptions{}, logger)

	addr := fmt.Sprintf("127.0.0.1:%d", 18000+os.Getpid()%1000)
	h := server.New(
		server.WithHostPorts(addr),
		server.WithTransport(netpoll.NewTransporter),
		server.WithSenseClientDisconnection(true),
		server.WithExitWaitTime(time.Second),
	)
	router.Setup(h.Engine, router.Options{CORSOrigin: "*", Logger: logger},
		handler.NewChatHandler(chatUC, logger), handler.NewHealthHandler(store))

	go h.Spin()
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Shutdown(shutdownCtx)
	})

	c, err := client.NewAPIClient(addr)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return c.Health(context.Background()) == nil
	}, 5*time.Second, 50*time.Millisecond)

	return c
}

func collect(t *testing.T, c *client.APIClient, req types.ChatRequest) []types.StreamEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	eventCh, errCh, err := c.Chat(ctx, req)
	require.NoError(t, err)

	var events []types.StreamEvent
	for ev := range eventCh {
		events = append(events, ev)
	}
	require.NoError(t, <-errCh)
	return events
}

func eventTypes(events []types.StreamEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func last(events []types.StreamEvent) types.StreamEvent {
	return events[len(events)-1]
}

func TestChat_PlainMessage(t *testing.T) {
	c := startServer(t)

	events := collect(t, c, types.ChatRequest{Messages: []types.UIMessage{{
		ID: "1", Role: "user", Content: "hi",
		Parts: []types.MessagePart{{Type: "text", Text: "hi"}},
	}}})

	require.GreaterOrEqual(t, len(events), 4)
	assert.Equal(t, types.EventSession, events[0].Type)
	assert.NotEmpty(t, events[0].ThreadID)
	assert.Equal(t, types.EventStatus, events[1].Type)
	assert.Equal(t, "thinking", events[1].Code)

	var text string
	for _, ev := range events[2 : len(events)-2] {
		require.Equal(t, types.EventTextDelta, ev.Type)
		text += ev.Content
	}
	assert.Contains(t, text, `I received your message: "hi"`)
	assert.Equal(t, types.EventTextEnd, events[len(events)-2].Type)
	assert.Equal(t, types.EventFinish, last(events).Type)
	assert.Equal(t, "stop", last(events).FinishReason)
}

func TestChat_ApproveAndReject(t *testing.T) {
	tests := []struct {
		name       string
		approved   bool
		wantFinish string
		wantCtx    map[string]any
	}{
		{name: "approve", approved: true, wantFinish: "stop", wantCtx: map[string]any{"theme": "dark"}},
		{name: "reject", approved: false, wantFinish: "error", wantCtx: map[string]any{}},
	}
	c := startServer(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := collect(t, c, types.ChatRequest{
				Messages: []types.UIMessage{types.TextMessage("/set theme=dark")},
			})
			threadID := events[0].ThreadID
			require.NotEmpty(t, threadID)

			approval := last(events)
			require.Equal(t, types.EventApprovalRequested, approval.Type, eventTypes(events))
			assert.Equal(t, agent.SetContextToolName, approval.ToolName)
			assert.Equal(t, map[string]any{"key": "theme", "value": "dark"}, approval.Args)
			assert.Equal(t, types.EventToolCall, events[len(events)-2].Type)

			th, err := c.GetThread(context.Background(), threadID)
			require.NoError(t, err)
			require.NotNil(t, th.PendingApproval)
			assert.Equal(t, approval.ToolCallID, th.PendingApproval.ToolCallID)

			events = collect(t, c, types.ChatRequest{
				ThreadID: threadID,
				Messages: []types.UIMessage{types.DecisionMessage(approval.ToolCallID, approval.ToolName, tt.approved)},
			})
			require.NotEmpty(t, events)
			assert.NotEqual(t, types.EventSession, events[0].Type, "existing threads get no session frame")
			assert.Equal(t, types.EventStatus, events[0].Type)
			assert.Equal(t, "executing", events[0].Code)
			assert.Equal(t, types.EventToolResult, events[len(events)-2].Type)
			assert.Equal(t, types.EventFinish, last(events).Type)
			assert.Equal(t, tt.wantFinish, last(events).FinishReason)

			th, err = c.GetThread(context.Background(), threadID)
			require.NoError(t, err)
			assert.Nil(t, th.PendingApproval)
			assert.Equal(t, tt.wantCtx, th.Context)
		})
	}
}

func TestChat_ApproveWithoutCheckpoint(t *testing.T) {
	c := startServer(t)

	events := collect(t, c, types.ChatRequest{
		ThreadID: "no-such-thread",
		Messages: []types.UIMessage{types.DecisionMessage("call_1", agent.SetContextToolName, true)},
	})

	require.Len(t, events, 1, eventTypes(events))
	assert.Equal(t, types.EventError, events[0].Type)
	assert.NotEmpty(t, events[0].Message)
}

func TestChat_InvalidRequest(t *testing.T) {
	c := startServer(t)

	_, _, err := c.Chat(context.Background(), types.ChatRequest{})
	require.Error(t, err)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Status)
}

func TestInvokeAndThreadLifecycle(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	res, err := c.Invoke(ctx, types.ChatRequest{
		Messages: []types.UIMessage{types.TextMessage("/set lang=go")},
	})
	require.NoError(t, err)
	require.True(t, res.Interrupted)
	require.NotNil(t, res.Approval)
	assert.Equal(t, agent.SetContextToolName, res.Approval.ToolName)

	res, err = c.Invoke(ctx, types.ChatRequest{
		ThreadID: res.ThreadID,
		Messages: []types.UIMessage{types.DecisionMessage(res.Approval.ToolCallID, res.Approval.ToolName, true)},
	})
	require.NoError(t, err)
	assert.False(t, res.Interrupted)
	assert.Equal(t, "stop", res.FinishReason)

	th, err := c.GetThread(ctx, res.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"lang": "go"}, th.Context)
	assert.NotEmpty(t, th.Messages)

	require.NoError(t, c.DeleteThread(ctx, res.ThreadID))
	_, err = c.GetThread(ctx, res.ThreadID)
	assert.True(t, client.IsNotFound(err))
}
