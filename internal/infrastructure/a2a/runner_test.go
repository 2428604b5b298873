package a2a

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	a2aclient "trpc.group/trpc-go/trpc-a2a-go/client"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"

	"github.com/lvyanru/hitl-chat/internal/domain"
	"github.com/lvyanru/hitl-chat/internal/domain/entity"
	"github.com/lvyanru/hitl-chat/internal/domain/mocks"
)

// fakeStreamer replays one scripted event list per StreamMessage call.
type fakeStreamer struct {
	mu      sync.Mutex
	scripts [][]protocol.StreamingMessageEvent
	sent    []protocol.SendMessageParams
	err     error
}

func (f *fakeStreamer) StreamMessage(ctx context.Context, params protocol.SendMessageParams, opts ...a2aclient.RequestOption) (<-chan protocol.StreamingMessageEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, params)
	if f.err != nil {
		return nil, f.err
	}
	var script []protocol.StreamingMessageEvent
	if len(f.scripts) > 0 {
		script, f.scripts = f.scripts[0], f.scripts[1:]
	}
	ch := make(chan protocol.StreamingMessageEvent, len(script))
	for _, ev := range script {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func boolPtr(b bool) *bool { return &b }

func artifact(text string) protocol.StreamingMessageEvent {
	return protocol.StreamingMessageEvent{Result: &protocol.TaskArtifactUpdateEvent{
		TaskID:    "task-1",
		ContextID: "ctx-1",
		Artifact: protocol.Artifact{
			ArtifactID: "answer",
			Parts:      []protocol.Part{protocol.NewTextPart(text)},
		},
		Append: boolPtr(true),
	}}
}

func status(state protocol.TaskState, text string, final bool) protocol.StreamingMessageEvent {
	ts := protocol.TaskStatus{State: state}
	if text != "" {
		msg := protocol.NewMessage(protocol.MessageRoleAgent, []protocol.Part{protocol.NewTextPart(text)})
		ts.Message = &msg
	}
	return protocol.StreamingMessageEvent{Result: &protocol.TaskStatusUpdateEvent{
		TaskID:    "task-1",
		ContextID: "ctx-1",
		Status:    ts,
		Final:     final,
	}}
}

func drain(t *testing.T, stream domain.SnapshotStream) ([]*entity.Snapshot, error) {
	t.Helper()
	defer stream.Close()
	var snaps []*entity.Snapshot
	for {
		snap, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return snaps, nil
		}
		if err != nil {
			return snaps, err
		}
		snaps = append(snaps, snap)
	}
}

func newTestRunner(client streamer, store domain.CheckpointStore) *Runner {
	return newRunner(client, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func startState(threadID, text string) *entity.ExecutionState {
	return &entity.ExecutionState{
		SessionID: threadID,
		Messages:  []*schema.Message{schema.UserMessage(text)},
		Context:   map[string]any{},
	}
}

func TestRunner_StreamsArtifactsCumulatively(t *testing.T) {
	client := &fakeStreamer{scripts: [][]protocol.StreamingMessageEvent{{
		artifact("Hello"),
		artifact(", world"),
		status(protocol.TaskStateCompleted, "", true),
	}}}
	store := &mocks.MockCheckpointStore{}
	r := newTestRunner(client, store)

	stream, err := r.Start(context.Background(), startState("t-1", "hi"))
	require.NoError(t, err)
	snaps, err := drain(t, stream)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "Hello", snaps[0].LastText())
	assert.Equal(t, "Hello, world", snaps[1].LastText())

	state, err := store.Get(context.Background(), "t-1")
	require.NoError(t, err)
	require.Len(t, state.Messages, 2)
	assert.Equal(t, "Hello, world", state.Messages[1].Content)
	assert.Equal(t, "ctx-1", state.Remote.ContextID)
	assert.False(t, state.Suspended())

	require.Len(t, client.sent, 1)
	assert.Nil(t, client.sent[0].Message.ContextID)
	assert.Equal(t, "hi", partsText(client.sent[0].Message.Parts))
}

func TestRunner_CompletedTaskStreamsArtifacts(t *testing.T) {
	client := &fakeStreamer{scripts: [][]protocol.StreamingMessageEvent{{
		{Result: &protocol.Task{
			ID:        "task-1",
			ContextID: "ctx-1",
			Status:    protocol.TaskStatus{State: protocol.TaskStateCompleted},
			Artifacts: []protocol.Artifact{{
				ArtifactID: "answer",
				Parts:      []protocol.Part{protocol.NewTextPart("Deployed.")},
			}},
		}},
	}}}
	store := &mocks.MockCheckpointStore{}
	r := newTestRunner(client, store)

	stream, err := r.Start(context.Background(), startState("t-1", "ship it"))
	require.NoError(t, err)
	snaps, err := drain(t, stream)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "Deployed.", snaps[0].LastText())

	state, err := store.Get(context.Background(), "t-1")
	require.NoError(t, err)
	require.Len(t, state.Messages, 2)
	assert.Equal(t, "Deployed.", state.Messages[1].Content)
	assert.Equal(t, "task-1", state.Remote.TaskID)
}

func TestRunner_InputRequiredSuspendsAndResumes(t *testing.T) {
	client := &fakeStreamer{scripts: [][]protocol.StreamingMessageEvent{
		{
			artifact("I need to deploy."),
			status(protocol.TaskStateInputRequired, `{"toolName":"deploy","args":{"env":"prod"}}`, false),
		},
		{
			artifact("Deployed."),
			status(protocol.TaskStateCompleted, "", true),
		},
	}}
	store := &mocks.MockCheckpointStore{}
	r := newTestRunner(client, store)
	ctx := context.Background()

	stream, err := r.Start(ctx, startState("t-1", "ship it"))
	require.NoError(t, err)
	snaps, err := drain(t, stream)
	require.NoError(t, err)
	last := snaps[len(snaps)-1]
	require.True(t, last.Interrupted())

	prompt, ok := last.Interrupt[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "deploy", prompt["toolName"])
	id, _ := prompt["toolCallId"].(string)
	assert.NotEmpty(t, id)

	state, err := store.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, state.Suspended())
	assert.Equal(t, id, state.PendingToolCallID())
	assert.Equal(t, "task-1", state.Remote.TaskID)

	stream, err = r.Resume(ctx, "t-1", map[string]any{"approved": true})
	require.NoError(t, err)
	snaps, err = drain(t, stream)
	require.NoError(t, err)
	require.NotEmpty(t, snaps)
	assert.Equal(t, "Deployed.", snaps[len(snaps)-1].LastText())

	require.Len(t, client.sent, 2)
	resume := client.sent[1].Message
	require.NotNil(t, resume.TaskID)
	assert.Equal(t, "task-1", *resume.TaskID)
	require.NotNil(t, resume.ContextID)
	assert.Equal(t, "ctx-1", *resume.ContextID)
	var body map[string]any
	require.NoError(t, sonic.UnmarshalString(partsText(resume.Parts), &body))
	assert.Equal(t, true, body["approved"])

	state, err = store.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.False(t, state.Suspended())
}

func TestRunner_ResumeWithoutPrompt(t *testing.T) {
	store := &mocks.MockCheckpointStore{}
	r := newTestRunner(&fakeStreamer{}, store)

	_, err := r.Resume(context.Background(), "missing", nil)
	assert.True(t, domain.IsNoPendingApproval(err))

	require.NoError(t, store.Put(context.Background(), "t-1", startState("t-1", "hi")))
	_, err = r.Resume(context.Background(), "t-1", nil)
	assert.True(t, domain.IsNoPendingApproval(err))
}

func TestRunner_FailedTaskIsAnError(t *testing.T) {
	client := &fakeStreamer{scripts: [][]protocol.StreamingMessageEvent{{
		status(protocol.TaskStateFailed, "quota exceeded", true),
	}}}
	r := newTestRunner(client, &mocks.MockCheckpointStore{})

	stream, err := r.Start(context.Background(), startState("t-1", "hi"))
	require.NoError(t, err)
	_, err = drain(t, stream)
	require.Error(t, err)
	assert.True(t, domain.IsUnavailable(err))
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestRunner_ConnectFailure(t *testing.T) {
	r := newTestRunner(&fakeStreamer{err: errors.New("connection refused")}, &mocks.MockCheckpointStore{})

	_, err := r.Start(context.Background(), startState("t-1", "hi"))
	assert.True(t, domain.IsUnavailable(err))
}

func TestRunner_NewMessageKeepsRemoteContext(t *testing.T) {
	client := &fakeStreamer{scripts: [][]protocol.StreamingMessageEvent{
		{status(protocol.TaskStateInputRequired, "confirm?", false)},
		{artifact("ok"), status(protocol.TaskStateCompleted, "", true)},
	}}
	store := &mocks.MockCheckpointStore{}
	r := newTestRunner(client, store)
	ctx := context.Background()

	stream, err := r.Start(ctx, startState("t-1", "first"))
	require.NoError(t, err)
	_, err = drain(t, stream)
	require.NoError(t, err)

	stream, err = r.Start(ctx, startState("t-1", "second"))
	require.NoError(t, err)
	_, err = drain(t, stream)
	require.NoError(t, err)

	require.Len(t, client.sent, 2)
	second := client.sent[1].Message
	require.NotNil(t, second.ContextID)
	assert.Equal(t, "ctx-1", *second.ContextID)
	assert.Nil(t, second.TaskID)

	state, err := store.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.False(t, state.Suspended())
}

func TestPartsPrompt(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[string]any
	}{
		{"json object", `{"toolName":"x"}`, map[string]any{"toolName": "x"}},
		{"plain text", "Please confirm", map[string]any{"message": "Please confirm"}},
		{"empty", "", map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var parts []protocol.Part
			if tt.text != "" {
				parts = []protocol.Part{protocol.NewTextPart(tt.text)}
			}
			assert.Equal(t, tt.want, partsPrompt(parts))
		})
	}
}

func TestArtifactText(t *testing.T) {
	var a artifactText
	assert.True(t, a.apply("a", "Hel", true))
	assert.True(t, a.apply("a", "lo", true))
	assert.False(t, a.apply("a", "", true))
	assert.True(t, a.apply("b", " there", false))
	assert.False(t, a.apply("b", " there", false))
	assert.Equal(t, "Hello there", a.String())
}
