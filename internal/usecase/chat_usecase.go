package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lvyanru/hitl-chat/internal/domain"
	"github.com/lvyanru/hitl-chat/internal/domain/entity"
)

// ChatOptions tunables of the chat use case
type ChatOptions struct {
	// StallTimeout enables the stall watchdog when positive
	StallTimeout time.Duration
	// NewID generates thread ids; nil means uuid v4
	NewID func() string
	// NewMessageID generates message ids; nil means uuid v4
	NewMessageID func() string
}

// chatUsecase implements domain.ChatUsecase.
// It wires the trigger resolver, the execution driver and the event
// translator into one pull pipeline per request.
type chatUsecase struct {
	resolver     *TriggerResolver
	driver       domain.ExecutionDriver
	translator   *EventTranslator
	store        domain.CheckpointStore
	stallTimeout time.Duration
	logger       *slog.Logger
}

// NewChatUsecase creates the chat use case.
//
// Parameters:
//   - driver: starts or resumes agent runs
//   - store: checkpoint store, used by the thread endpoints
//   - opts: watchdog and id generation
//   - logger: structured logger
//
// Returns:
//   - domain.ChatUsecase implementation
func NewChatUsecase(
	driver domain.ExecutionDriver,
	store domain.CheckpointStore,
	opts ChatOptions,
	logger *slog.Logger,
) domain.ChatUsecase {
	return &chatUsecase{
		resolver:     NewTriggerResolver(opts.NewID),
		driver:       driver,
		translator:   NewEventTranslator(opts.NewMessageID, logger),
		store:        store,
		stallTimeout: opts.StallTimeout,
		logger:       logger,
	}
}

// Resolve implements domain.ChatUsecase.
func (u *chatUsecase) Resolve(req *entity.ChatRequest) entity.ResolvedTrigger {
	return u.resolver.Resolve(req)
}

// Stream drives the resolved trigger and returns its protocol events.
//
// Every failure is contained in the stream: driver and run errors become a
// single error event, a panic in the pipeline becomes an internal error
// event. Once ctx is cancelled the remaining events are discarded and the
// snapshot stream is closed; the run itself keeps going in the background.
func (u *chatUsecase) Stream(ctx context.Context, resolved entity.ResolvedTrigger) <-chan entity.Event {
	out := make(chan entity.Event)

	go func() {
		defer close(out)

		emit := func(ev entity.Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		defer func() {
			if r := recover(); r != nil {
				u.logger.Error("chat stream panic recovered",
					"thread_id", resolved.ThreadID,
					"panic", r)
				emit(entity.ErrorEvent("an internal error occurred", "INTERNAL_ERROR"))
			}
		}()

		u.logger.Info("chat stream started",
			"thread_id", resolved.ThreadID,
			"trigger", resolved.Trigger.Kind,
			"new_thread", resolved.IsNewThread)

		exec, err := u.driver.Drive(ctx, resolved.Trigger)
		if err != nil {
			u.logger.Warn("failed to drive run",
				"thread_id", resolved.ThreadID,
				"trigger", resolved.Trigger.Kind,
				"error", err)
			emit(entity.ErrorEvent(domain.UserMessage(err), domain.ErrorCode(err)))
			return
		}

		exec.Snapshots = WatchStalls(exec.Snapshots, u.stallTimeout)
		u.translator.Translate(exec, emit)
	}()

	return out
}

// Invoke runs a request through the streaming pipeline and aggregates its
// events into a single result.
func (u *chatUsecase) Invoke(ctx context.Context, req *entity.ChatRequest) (*entity.InvokeResult, error) {
	if req == nil {
		return nil, domain.ErrInvalidInput
	}

	resolved := u.Resolve(req)
	result := &entity.InvokeResult{ThreadID: resolved.ThreadID}

	var text strings.Builder
	for ev := range u.Stream(ctx, resolved) {
		switch ev.Type {
		case entity.EventTextDelta:
			text.WriteString(ev.Content)
		case entity.EventApprovalRequested:
			result.Interrupted = true
			result.Approval = &entity.ApprovalRequest{
				ToolCallID: ev.ToolCallID,
				ToolName:   ev.ToolName,
			}
			if args, ok := ev.Args.(map[string]any); ok {
				result.Approval.Args = args
			}
		case entity.EventToolResult:
			result.ToolResult = ev.Result
		case entity.EventFinish:
			result.FinishReason = ev.FinishReason
		case entity.EventError:
			result.Error = ev.Message
			result.FinishReason = entity.FinishError
		}
	}
	result.Content = text.String()

	if result.FinishReason == "" && !result.Interrupted {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("invoke cancelled: %w", err)
		}
	}
	return result, nil
}

// GetThread implements domain.ChatUsecase.
func (u *chatUsecase) GetThread(ctx context.Context, threadID string) (*entity.ExecutionState, error) {
	if threadID == "" {
		return nil, fmt.Errorf("%w: thread id is required", domain.ErrInvalidInput)
	}
	return u.store.Get(ctx, threadID)
}

// DeleteThread implements domain.ChatUsecase.
func (u *chatUsecase) DeleteThread(ctx context.Context, threadID string) error {
	if threadID == "" {
		return fmt.Errorf("%w: thread id is required", domain.ErrInvalidInput)
	}
	if err := u.store.Delete(ctx, threadID); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	u.logger.Info("thread deleted", "thread_id", threadID)
	return nil
}
