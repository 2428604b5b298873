package domain

import (
	"context"

	"github.com/lvyanru/hitl-chat/internal/domain/entity"
)

// SnapshotStream lazy sequence of execution snapshots.
// Recv returns io.EOF once the run completed or suspended.
type SnapshotStream interface {
	Recv() (*entity.Snapshot, error)
	Close()
}

// Execution a run started or resumed for one request
type Execution struct {
	// Trigger the trigger that was driven; resume triggers have ToolCallID
	// filled from the pending approval when the request omitted it.
	Trigger   entity.StreamTrigger
	Snapshots SnapshotStream
}

// CheckpointStore durable execution state keyed by thread id
type CheckpointStore interface {
	// Get returns the checkpoint of a thread, or a NotFound error
	Get(ctx context.Context, threadID string) (*entity.ExecutionState, error)

	// Put writes the checkpoint of a thread
	Put(ctx context.Context, threadID string, state *entity.ExecutionState) error

	// Delete removes the checkpoint of a thread; deleting a missing thread is not an error
	Delete(ctx context.Context, threadID string) error

	// Ping checks the backing storage
	Ping(ctx context.Context) error

	// Close releases the storage
	Close() error
}

// AgentRunner suspend/resume-capable agent execution.
// Runs persist their own checkpoints as a side effect.
type AgentRunner interface {
	// Start begins a run from the initial state
	Start(ctx context.Context, state *entity.ExecutionState) (SnapshotStream, error)

	// Resume continues the suspended run of a thread with a resume payload
	Resume(ctx context.Context, threadID string, payload any) (SnapshotStream, error)
}

// ExecutionDriver starts or resumes the run a trigger asks for
type ExecutionDriver interface {
	// Drive returns the snapshot sequence of the run; resume triggers on a
	// thread without a pending approval fail with ErrNoPendingApproval
	Drive(ctx context.Context, trigger entity.StreamTrigger) (*Execution, error)
}

// ChatUsecase chat use cases
type ChatUsecase interface {
	// Resolve classifies a request into exactly one trigger
	Resolve(req *entity.ChatRequest) entity.ResolvedTrigger

	// Stream drives the trigger and returns its protocol events; the channel
	// closes after the terminal event or when ctx is cancelled
	Stream(ctx context.Context, resolved entity.ResolvedTrigger) <-chan entity.Event

	// Invoke runs a request to its terminal event and aggregates the result
	Invoke(ctx context.Context, req *entity.ChatRequest) (*entity.InvokeResult, error)

	// GetThread returns the checkpoint of a thread
	GetThread(ctx context.Context, threadID string) (*entity.ExecutionState, error)

	// DeleteThread drops the checkpoint of a thread
	DeleteThread(ctx context.Context, threadID string) error
}
