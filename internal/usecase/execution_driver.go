package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/lvyanru/hitl-chat/internal/domain"
	"github.com/lvyanru/hitl-chat/internal/domain/entity"
)

// executionDriver starts fresh runs for Message triggers and resumes
// checkpointed runs for Approve/Reject triggers.
type executionDriver struct {
	store  domain.CheckpointStore
	runner domain.AgentRunner
	logger *slog.Logger
}

// NewExecutionDriver creates the driver over a checkpoint store and an agent runner.
func NewExecutionDriver(store domain.CheckpointStore, runner domain.AgentRunner, logger *slog.Logger) domain.ExecutionDriver {
	return &executionDriver{
		store:  store,
		runner: runner,
		logger: logger,
	}
}

// Drive implements domain.ExecutionDriver.
func (d *executionDriver) Drive(ctx context.Context, trigger entity.StreamTrigger) (*domain.Execution, error) {
	switch trigger.Kind {
	case entity.TriggerMessage:
		return d.start(ctx, trigger)
	case entity.TriggerApprove, entity.TriggerReject:
		return d.resume(ctx, trigger)
	default:
		return nil, domain.NewInvalidInputError(fmt.Sprintf("unknown trigger kind %q", trigger.Kind))
	}
}

func (d *executionDriver) start(ctx context.Context, trigger entity.StreamTrigger) (*domain.Execution, error) {
	now := time.Now()
	state := &entity.ExecutionState{
		SessionID: trigger.ThreadID,
		Messages:  []*schema.Message{schema.UserMessage(trigger.Text)},
		Context:   copyContext(trigger.Context),
		CreatedAt: now,
		UpdatedAt: now,
	}

	stream, err := d.runner.Start(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	d.logger.Debug("run started", "thread_id", trigger.ThreadID)
	return &domain.Execution{Trigger: trigger, Snapshots: stream}, nil
}

func (d *executionDriver) resume(ctx context.Context, trigger entity.StreamTrigger) (*domain.Execution, error) {
	checkpoint, err := d.store.Get(ctx, trigger.ThreadID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewNoPendingApprovalError(trigger.ThreadID)
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if !checkpoint.Suspended() {
		return nil, domain.NewNoPendingApprovalError(trigger.ThreadID)
	}

	pendingID := checkpoint.PendingToolCallID()
	if trigger.ToolCallID != "" && pendingID != "" && trigger.ToolCallID != pendingID {
		return nil, domain.NewToolCallMismatchError(trigger.ThreadID, trigger.ToolCallID)
	}
	if trigger.ToolCallID == "" {
		trigger.ToolCallID = pendingID
	}

	stream, err := d.runner.Resume(ctx, trigger.ThreadID, trigger.ResumePayload())
	if err != nil {
		return nil, fmt.Errorf("failed to resume run: %w", err)
	}
	d.logger.Debug("run resumed",
		"thread_id", trigger.ThreadID,
		"tool_call_id", trigger.ToolCallID,
		"approved", trigger.Approved())
	return &domain.Execution{Trigger: trigger, Snapshots: stream}, nil
}

func copyContext(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
