package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvyanru/hitl-chat/internal/cli/client"
	"github.com/lvyanru/hitl-chat/internal/cli/config"
	"github.com/lvyanru/hitl-chat/internal/cli/types"
)

func init() {
	color.NoColor = true
}

func TestEventPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &eventPrinter{out: &buf}

	for _, ev := range []types.StreamEvent{
		{Type: types.EventSession, ThreadID: "t-1"},
		{Type: types.EventTextDelta, Content: "Let me "},
		{Type: types.EventTextDelta, Content: "check."},
		{Type: types.EventToolCall, ToolName: "set_context", Args: map[string]any{"key": "theme"}},
		{Type: types.EventApprovalRequested, ToolCallID: "c-1", ToolName: "set_context", Args: map[string]any{"key": "theme"}},
		{Type: types.EventFinish, FinishReason: "tool-calls"},
	} {
		p.print(ev)
	}
	p.endLine()

	assert.Equal(t, `Let me check.
→ set_context {"key":"theme"}
? approval required: set_context {"key":"theme"} (c-1)
  run 'hitlctl approve --thread t-1' or 'hitlctl reject --thread t-1'
`, buf.String())
}

func TestEventPrinter_FinishShowsUsage(t *testing.T) {
	var buf bytes.Buffer
	p := &eventPrinter{out: &buf}

	p.print(types.StreamEvent{Type: types.EventTextDelta, Content: "Hi"})
	p.print(types.StreamEvent{Type: types.EventTextEnd})
	p.print(types.StreamEvent{Type: types.EventFinish, FinishReason: "stop", Usage: &types.Usage{PromptTokens: 20, CompletionTokens: 2}})
	p.print(types.StreamEvent{Type: types.EventFinish, FinishReason: "stop"})
	p.endLine()

	assert.Equal(t, "Hi\ntokens: 20 prompt, 2 completion\n", buf.String())
}

func TestSession_StreamRemembersThread(t *testing.T) {
	t.Setenv(config.EnvConfigPath, filepath.Join(t.TempDir(), "config.json"))

	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"session\",\"threadId\":\"t-42\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"error\",\"message\":\"boom\"}\n\n")
	}))
	defer srv.Close()

	apiClient, err := client.NewAPIClient(srv.URL)
	require.NoError(t, err)
	s := &session{cfg: &config.Config{Server: srv.URL}, client: apiClient}

	var out bytes.Buffer
	res, err := s.stream(context.Background(), &out, types.ChatRequest{
		Messages: []types.UIMessage{types.TextMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "t-42", res.threadID)
	assert.True(t, res.failed)
	assert.Contains(t, out.String(), "✗ boom")
	assert.JSONEq(t, `{"messages":[{"role":"user","content":"hi"}]}`, string(gotBody))

	saved, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "t-42", saved.ThreadID)
}

func TestSession_ThreadFor(t *testing.T) {
	s := &session{cfg: &config.Config{ThreadID: "saved"}}

	got, err := s.threadFor("explicit")
	require.NoError(t, err)
	assert.Equal(t, "explicit", got)

	got, err = s.threadFor("")
	require.NoError(t, err)
	assert.Equal(t, "saved", got)

	s.cfg.ThreadID = ""
	_, err = s.threadFor("")
	assert.Error(t, err)
}
