package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvyanru/hitl-chat/internal/domain"
	"github.com/lvyanru/hitl-chat/internal/domain/entity"
	"github.com/lvyanru/hitl-chat/internal/domain/mocks"
)

func suspendedState(threadID, toolCallID string) *entity.ExecutionState {
	return &entity.ExecutionState{
		SessionID: threadID,
		Messages:  []*schema.Message{schema.UserMessage("set theme")},
		Context:   map[string]any{},
		Pending: &entity.PendingApproval{
			ToolCall: schema.ToolCall{
				ID:       toolCallID,
				Function: schema.FunctionCall{Name: "set_context", Arguments: `{"key":"theme","value":"dark"}`},
			},
			CreatedAt: time.Now(),
		},
	}
}

func TestExecutionDriver_MessageStartsRun(t *testing.T) {
	var started *entity.ExecutionState
	runner := &mocks.MockAgentRunner{
		StartFunc: func(ctx context.Context, state *entity.ExecutionState) (domain.SnapshotStream, error) {
			started = state
			return mocks.NewSnapshotStream(), nil
		},
	}
	driver := NewExecutionDriver(&mocks.MockCheckpointStore{}, runner, newTestLogger())

	exec, err := driver.Drive(context.Background(), entity.StreamTrigger{
		Kind:     entity.TriggerMessage,
		ThreadID: "t-1",
		Text:     "hello",
		Context:  map[string]any{"lang": "en"},
	})
	require.NoError(t, err)
	require.NotNil(t, exec.Snapshots)

	require.NotNil(t, started)
	assert.Equal(t, "t-1", started.SessionID)
	require.Len(t, started.Messages, 1)
	assert.Equal(t, schema.User, started.Messages[0].Role)
	assert.Equal(t, "hello", started.Messages[0].Content)
	assert.Equal(t, map[string]any{"lang": "en"}, started.Context)
}

func TestExecutionDriver_MessageStartsWithEmptyContext(t *testing.T) {
	var started *entity.ExecutionState
	runner := &mocks.MockAgentRunner{
		StartFunc: func(ctx context.Context, state *entity.ExecutionState) (domain.SnapshotStream, error) {
			started = state
			return mocks.NewSnapshotStream(), nil
		},
	}
	driver := NewExecutionDriver(&mocks.MockCheckpointStore{}, runner, newTestLogger())

	_, err := driver.Drive(context.Background(), entity.StreamTrigger{Kind: entity.TriggerMessage, ThreadID: "t"})
	require.NoError(t, err)
	assert.NotNil(t, started.Context)
	assert.Empty(t, started.Context)
}

func TestExecutionDriver_Resume(t *testing.T) {
	tests := []struct {
		name        string
		setupStore  func(*mocks.MockCheckpointStore)
		trigger     entity.StreamTrigger
		wantErr     bool
		wantPending bool
		wantToolID  string
		wantPayload any
	}{
		{
			name:        "no checkpoint",
			setupStore:  func(m *mocks.MockCheckpointStore) {},
			trigger:     entity.StreamTrigger{Kind: entity.TriggerApprove, ThreadID: "t-1"},
			wantErr:     true,
			wantPending: true,
		},
		{
			name: "checkpoint without pending approval",
			setupStore: func(m *mocks.MockCheckpointStore) {
				_ = m.Put(context.Background(), "t-1", &entity.ExecutionState{SessionID: "t-1"})
			},
			trigger:     entity.StreamTrigger{Kind: entity.TriggerReject, ThreadID: "t-1"},
			wantErr:     true,
			wantPending: true,
		},
		{
			name: "tool call id mismatch",
			setupStore: func(m *mocks.MockCheckpointStore) {
				_ = m.Put(context.Background(), "t-1", suspendedState("t-1", "call-1"))
			},
			trigger:     entity.StreamTrigger{Kind: entity.TriggerApprove, ThreadID: "t-1", ToolCallID: "call-other"},
			wantErr:     true,
			wantPending: true,
		},
		{
			name: "store failure is not a missing approval",
			setupStore: func(m *mocks.MockCheckpointStore) {
				m.GetFunc = func(ctx context.Context, threadID string) (*entity.ExecutionState, error) {
					return nil, errors.New("disk on fire")
				}
			},
			trigger: entity.StreamTrigger{Kind: entity.TriggerApprove, ThreadID: "t-1"},
			wantErr: true,
		},
		{
			name: "approve fills tool call id and default payload",
			setupStore: func(m *mocks.MockCheckpointStore) {
				_ = m.Put(context.Background(), "t-1", suspendedState("t-1", "call-1"))
			},
			trigger:     entity.StreamTrigger{Kind: entity.TriggerApprove, ThreadID: "t-1"},
			wantToolID:  "call-1",
			wantPayload: map[string]any{"approved": true},
		},
		{
			name: "reject injects approved false",
			setupStore: func(m *mocks.MockCheckpointStore) {
				_ = m.Put(context.Background(), "t-1", suspendedState("t-1", "call-1"))
			},
			trigger:     entity.StreamTrigger{Kind: entity.TriggerReject, ThreadID: "t-1", ToolCallID: "call-1"},
			wantToolID:  "call-1",
			wantPayload: map[string]any{"approved": false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mocks.MockCheckpointStore{}
			tt.setupStore(store)

			var (
				resumed      bool
				gotPayload   any
				startedFresh bool
			)
			runner := &mocks.MockAgentRunner{
				StartFunc: func(ctx context.Context, state *entity.ExecutionState) (domain.SnapshotStream, error) {
					startedFresh = true
					return mocks.NewSnapshotStream(), nil
				},
				ResumeFunc: func(ctx context.Context, threadID string, payload any) (domain.SnapshotStream, error) {
					resumed = true
					gotPayload = payload
					return mocks.NewSnapshotStream(), nil
				},
			}

			exec, err := NewExecutionDriver(store, runner, newTestLogger()).Drive(context.Background(), tt.trigger)
			assert.False(t, startedFresh, "resume triggers never start a fresh run")

			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantPending, domain.IsNoPendingApproval(err))
				assert.False(t, resumed)
				return
			}
			require.NoError(t, err)
			assert.True(t, resumed)
			assert.Equal(t, tt.wantToolID, exec.Trigger.ToolCallID)
			assert.Equal(t, tt.wantPayload, gotPayload)
		})
	}
}

func TestExecutionDriver_RunnerErrorIsWrapped(t *testing.T) {
	runner := &mocks.MockAgentRunner{
		StartFunc: func(ctx context.Context, state *entity.ExecutionState) (domain.SnapshotStream, error) {
			return nil, domain.NewUnavailableError("chat model", errors.New("dial tcp"))
		},
	}
	_, err := NewExecutionDriver(&mocks.MockCheckpointStore{}, runner, newTestLogger()).
		Drive(context.Background(), entity.StreamTrigger{Kind: entity.TriggerMessage, ThreadID: "t"})
	require.Error(t, err)
	assert.True(t, domain.IsUnavailable(err))
}
