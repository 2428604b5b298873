package usecase

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvyanru/hitl-chat/internal/domain"
	"github.com/lvyanru/hitl-chat/internal/domain/entity"
	"github.com/lvyanru/hitl-chat/internal/domain/mocks"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func textSnapshot(texts ...string) *entity.Snapshot {
	msgs := []*schema.Message{schema.UserMessage("question")}
	for _, text := range texts {
		msgs = append(msgs, schema.AssistantMessage(text, nil))
	}
	return &entity.Snapshot{Messages: msgs, Context: map[string]any{}}
}

func translateAll(trigger entity.StreamTrigger, stream domain.SnapshotStream) []entity.Event {
	translator := NewEventTranslator(fixedID("msg-1"), newTestLogger())
	var events []entity.Event
	translator.Translate(&domain.Execution{Trigger: trigger, Snapshots: stream}, func(ev entity.Event) bool {
		events = append(events, ev)
		return true
	})
	return events
}

func eventTypes(events []entity.Event) []entity.EventType {
	types := make([]entity.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func TestTextCursor_Advance(t *testing.T) {
	tests := []struct {
		name   string
		inputs []string
		want   []string
	}{
		{"strict extensions", []string{"He", "Hello", "Hello world"}, []string{"He", "llo", " world"}},
		{"unchanged text emits nothing", []string{"Hi", "Hi", "Hi"}, []string{"Hi", "", ""}},
		{"empty text emits nothing", []string{"", "a", ""}, []string{"", "a", ""}},
		{"unrelated text is emitted whole", []string{"Hello", "Bye"}, []string{"Hello", "Bye"}},
		{"shorter text is emitted whole", []string{"Hello", "Hell"}, []string{"Hello", "Hell"}},
		{"multibyte suffix", []string{"你", "你好"}, []string{"你", "好"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c TextCursor
			for i, in := range tt.inputs {
				assert.Equal(t, tt.want[i], c.Advance(in), "step %d", i)
			}
		})
	}
}

func TestTranslate_MessageCompletes(t *testing.T) {
	stream := mocks.NewSnapshotStream(
		textSnapshot("Hel"),
		textSnapshot("Hello"),
		textSnapshot("Hello"),
		textSnapshot("Hello there"),
	)
	events := translateAll(entity.StreamTrigger{Kind: entity.TriggerMessage, ThreadID: "t"}, stream)

	assert.Equal(t, []entity.EventType{
		entity.EventStatus,
		entity.EventTextDelta, entity.EventTextDelta, entity.EventTextDelta,
		entity.EventTextEnd,
		entity.EventFinish,
	}, eventTypes(events))
	assert.Equal(t, string(entity.StatusThinking), events[0].Code)

	var sb strings.Builder
	for _, ev := range events {
		if ev.Type == entity.EventTextDelta {
			sb.WriteString(ev.Content)
			assert.Equal(t, "msg-1", ev.MessageID)
		}
	}
	assert.Equal(t, "Hello there", sb.String())
	assert.Equal(t, entity.FinishStop, events[len(events)-1].FinishReason)
	assert.True(t, stream.Closed())
}

func TestTranslate_DeltasConcatenateToFinalText(t *testing.T) {
	sequences := [][]string{
		{"a", "ab", "abc"},
		{"The", "The quick", "The quick", "The quick brown fox"},
		{"", "x", "xy", "xy", "xyz"},
		{"一", "一二", "一二三"},
	}
	for _, seq := range sequences {
		snaps := make([]*entity.Snapshot, len(seq))
		for i, text := range seq {
			snaps[i] = textSnapshot(text)
		}
		events := translateAll(entity.StreamTrigger{Kind: entity.TriggerMessage}, mocks.NewSnapshotStream(snaps...))

		var sb strings.Builder
		for _, ev := range events {
			if ev.Type == entity.EventTextDelta {
				assert.NotEmpty(t, ev.Content)
				sb.WriteString(ev.Content)
			}
		}
		assert.Equal(t, seq[len(seq)-1], sb.String())
	}
}

func TestTranslate_InterruptStopsStream(t *testing.T) {
	interrupted := textSnapshot("Let me set that")
	interrupted.Interrupt = []any{entity.ApprovalRequest{
		ToolCallID: "call-9",
		ToolName:   "set_context",
		Args:       map[string]any{"key": "theme", "value": "dark"},
	}}
	stream := mocks.NewSnapshotStream(
		textSnapshot("Let me"),
		interrupted,
		textSnapshot("never seen"),
	)

	events := translateAll(entity.StreamTrigger{Kind: entity.TriggerMessage}, stream)

	require.Equal(t, []entity.EventType{
		entity.EventStatus,
		entity.EventTextDelta,
		entity.EventToolCall,
		entity.EventApprovalRequested,
	}, eventTypes(events))
	call, approval := events[2], events[3]
	assert.Equal(t, "call-9", call.ToolCallID)
	assert.Equal(t, call.ToolCallID, approval.ToolCallID)
	assert.Equal(t, "set_context", approval.ToolName)
	assert.Equal(t, map[string]any{"key": "theme", "value": "dark"}, approval.Args)
	assert.Equal(t, 2, stream.Consumed())
	assert.True(t, stream.Closed())
}

func TestTranslate_FinishCarriesUsage(t *testing.T) {
	final := textSnapshot("Hello")
	final.Usage = &entity.Usage{PromptTokens: 12, CompletionTokens: 3}
	events := translateAll(
		entity.StreamTrigger{Kind: entity.TriggerMessage, ThreadID: "t"},
		mocks.NewSnapshotStream(textSnapshot("Hello"), final),
	)

	assert.Equal(t, []entity.EventType{
		entity.EventStatus,
		entity.EventTextDelta,
		entity.EventTextEnd,
		entity.EventFinish,
	}, eventTypes(events))
	finish := events[len(events)-1]
	require.NotNil(t, finish.Usage)
	assert.Equal(t, 12, finish.Usage.PromptTokens)
	assert.Equal(t, 3, finish.Usage.CompletionTokens)
}

func TestTranslate_ApproveEmitsToolResultAndStop(t *testing.T) {
	final := textSnapshot("Done.")
	final.Context = map[string]any{"theme": "dark"}
	events := translateAll(
		entity.StreamTrigger{Kind: entity.TriggerApprove, ThreadID: "t", ToolCallID: "call-1"},
		mocks.NewSnapshotStream(textSnapshot("Do"), final),
	)

	assert.Equal(t, []entity.EventType{
		entity.EventStatus,
		entity.EventTextDelta, entity.EventTextDelta,
		entity.EventTextEnd,
		entity.EventToolResult,
		entity.EventFinish,
	}, eventTypes(events))
	assert.Equal(t, string(entity.StatusExecuting), events[0].Code)
	assert.Equal(t, "call-1", events[4].ToolCallID)
	assert.Equal(t, map[string]any{"theme": "dark"}, events[4].Result)
	assert.Equal(t, entity.FinishStop, events[5].FinishReason)
}

func TestTranslate_RejectFinishesWithError(t *testing.T) {
	events := translateAll(
		entity.StreamTrigger{Kind: entity.TriggerReject, ThreadID: "t"},
		mocks.NewSnapshotStream(),
	)

	assert.Equal(t, []entity.EventType{
		entity.EventStatus,
		entity.EventTextEnd,
		entity.EventToolResult,
		entity.EventFinish,
	}, eventTypes(events))
	assert.Equal(t, entity.StatusMessageCancelling, events[0].Message)
	assert.Equal(t, entity.DefaultApprovalToolName, events[2].ToolCallID)
	assert.Equal(t, map[string]any{"applied": false}, events[2].Result)
	assert.Equal(t, entity.FinishError, events[3].FinishReason)
}

func TestTranslate_ApproveWithoutSnapshotsUsesSyntheticResult(t *testing.T) {
	events := translateAll(
		entity.StreamTrigger{Kind: entity.TriggerApprove, ToolCallID: "c"},
		mocks.NewSnapshotStream(),
	)
	require.Len(t, events, 4)
	assert.Equal(t, map[string]any{"applied": true}, events[2].Result)
	assert.Equal(t, entity.FinishStop, events[3].FinishReason)
}

func TestTranslate_ErrorIsLast(t *testing.T) {
	stream := mocks.NewSnapshotStream(textSnapshot("partial"))
	stream.Err = errors.New("model exploded")

	events := translateAll(entity.StreamTrigger{Kind: entity.TriggerApprove}, stream)

	require.Equal(t, []entity.EventType{
		entity.EventStatus,
		entity.EventTextDelta,
		entity.EventError,
	}, eventTypes(events))
	assert.Equal(t, "model exploded", events[2].Message)
}

func TestTranslate_DomainErrorUsesUserMessage(t *testing.T) {
	stream := mocks.NewSnapshotStream()
	stream.Err = domain.NewNoPendingApprovalError("t-1")

	events := translateAll(entity.StreamTrigger{Kind: entity.TriggerMessage}, stream)

	require.Len(t, events, 2)
	assert.Equal(t, entity.EventError, events[1].Type)
	assert.Equal(t, "no pending approval for thread 't-1'", events[1].Message)
	assert.Equal(t, "NO_PENDING_APPROVAL", events[1].Code)
}

func TestTranslate_StatusPassThrough(t *testing.T) {
	stream := mocks.NewSnapshotStream(
		&entity.Snapshot{Status: &entity.StatusSignal{Code: entity.StatusTimeout, Message: "slow"}},
		textSnapshot("ok"),
	)
	events := translateAll(entity.StreamTrigger{Kind: entity.TriggerMessage}, stream)

	require.Equal(t, []entity.EventType{
		entity.EventStatus,
		entity.EventStatus,
		entity.EventTextDelta,
		entity.EventTextEnd,
		entity.EventFinish,
	}, eventTypes(events))
	assert.Equal(t, string(entity.StatusTimeout), events[1].Code)
}

func TestTranslate_StopsWhenEmitRefuses(t *testing.T) {
	stream := mocks.NewSnapshotStream(textSnapshot("a"), textSnapshot("ab"), textSnapshot("abc"))
	translator := NewEventTranslator(nil, newTestLogger())

	var events []entity.Event
	translator.Translate(&domain.Execution{Trigger: entity.StreamTrigger{Kind: entity.TriggerMessage}, Snapshots: stream},
		func(ev entity.Event) bool {
			events = append(events, ev)
			return len(events) < 2
		})

	assert.Len(t, events, 2)
	assert.Equal(t, 1, stream.Consumed())
	assert.True(t, stream.Closed())
}

func TestNormalizeInterrupt(t *testing.T) {
	tests := []struct {
		name     string
		payload  any
		wantID   string
		wantName string
		wantArgs map[string]any
	}{
		{
			name:     "typed request",
			payload:  entity.ApprovalRequest{ToolCallID: "c1", ToolName: "t", Args: map[string]any{"a": 1}},
			wantID:   "c1",
			wantName: "t",
			wantArgs: map[string]any{"a": 1},
		},
		{
			name:     "camel case map",
			payload:  map[string]any{"toolCallId": "c2", "toolName": "deploy", "args": map[string]any{"env": "prod"}},
			wantID:   "c2",
			wantName: "deploy",
			wantArgs: map[string]any{"env": "prod"},
		},
		{
			name:     "snake case map with json arguments",
			payload:  map[string]any{"tool_call_id": "c3", "name": "deploy", "arguments": `{"env":"dev"}`},
			wantID:   "c3",
			wantName: "deploy",
			wantArgs: map[string]any{"env": "dev"},
		},
		{
			name:     "json string payload",
			payload:  `{"id":"c4","tool":"rm","input":{"path":"/tmp"}}`,
			wantID:   "c4",
			wantName: "rm",
			wantArgs: map[string]any{"path": "/tmp"},
		},
		{
			name:     "scalar args are wrapped",
			payload:  map[string]any{"id": "c5", "name": "n", "args": "not json"},
			wantID:   "c5",
			wantName: "n",
			wantArgs: map[string]any{"value": "not json"},
		},
		{
			name:     "plain string becomes message",
			payload:  "please confirm",
			wantName: entity.DefaultApprovalToolName,
			wantArgs: map[string]any{"message": "please confirm"},
		},
		{
			name:     "nil payload",
			payload:  nil,
			wantName: entity.DefaultApprovalToolName,
			wantArgs: map[string]any{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeInterrupt(tt.payload)
			if tt.wantID != "" {
				assert.Equal(t, tt.wantID, got.ToolCallID)
			} else {
				assert.True(t, strings.HasPrefix(got.ToolCallID, "call_"))
			}
			assert.Equal(t, tt.wantName, got.ToolName)
			assert.Equal(t, tt.wantArgs, got.Args)
		})
	}
}

func TestNormalizeInterrupt_SyntheticIDIsDeterministic(t *testing.T) {
	a := NormalizeInterrupt(map[string]any{"name": "deploy", "args": map[string]any{"env": "prod", "force": true}})
	b := NormalizeInterrupt(map[string]any{"args": map[string]any{"force": true, "env": "prod"}, "name": "deploy"})
	c := NormalizeInterrupt(map[string]any{"name": "deploy", "args": map[string]any{"env": "dev"}})

	assert.Equal(t, a.ToolCallID, b.ToolCallID)
	assert.NotEqual(t, a.ToolCallID, c.ToolCallID)
}
