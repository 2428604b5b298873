package a2a

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"

	"github.com/lvyanru/hitl-chat/internal/domain"
	"github.com/lvyanru/hitl-chat/internal/domain/entity"
)

const snapshotBuffer = 16

type taskOutcome int

const (
	outcomeRunning taskOutcome = iota
	outcomeCompleted
	outcomeSuspended
)

// Runner delegates runs to a remote A2A agent.
//
// Artifact text becomes cumulative snapshots. A task that enters the
// input-required state is the interrupt: its prompt and the task ids are
// checkpointed, and Resume sends the decision back into the same task.
type Runner struct {
	client streamer
	store  domain.CheckpointStore
	logger *slog.Logger
}

func newRunner(client streamer, store domain.CheckpointStore, logger *slog.Logger) *Runner {
	return &Runner{client: client, store: store, logger: logger}
}

// Start implements domain.AgentRunner.
func (r *Runner) Start(ctx context.Context, initial *entity.ExecutionState) (domain.SnapshotStream, error) {
	threadID := initial.SessionID

	state := initial
	prev, err := r.store.Get(ctx, threadID)
	switch {
	case err == nil:
		state = continueThread(prev, initial)
	case domain.IsNotFound(err):
	default:
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if state.Context == nil {
		state.Context = map[string]any{}
	}

	var contextID string
	if state.Remote != nil {
		contextID = state.Remote.ContextID
	}
	msg := userMessage(lastUserText(state.Messages), contextID, "", map[string]any{
		"thread_id": threadID,
		"context":   state.Context,
	})

	if err := r.persist(ctx, state); err != nil {
		return nil, err
	}
	return r.send(ctx, state, msg)
}

// Resume implements domain.AgentRunner. The payload is sent as JSON text.
func (r *Runner) Resume(ctx context.Context, threadID string, payload any) (domain.SnapshotStream, error) {
	state, err := r.store.Get(ctx, threadID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewNoPendingApprovalError(threadID)
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if state.Remote == nil || state.Remote.Prompt == nil {
		return nil, domain.NewNoPendingApprovalError(threadID)
	}
	if state.Context == nil {
		state.Context = map[string]any{}
	}

	body, err := sonic.MarshalString(payload)
	if err != nil {
		return nil, domain.NewInvalidInputError(fmt.Sprintf("resume payload is not serializable: %v", err))
	}
	msg := userMessage(body, state.Remote.ContextID, state.Remote.TaskID, map[string]any{
		"thread_id":    threadID,
		"tool_call_id": state.PendingToolCallID(),
	})
	state.Remote.Prompt = nil

	return r.send(ctx, state, msg)
}

func (r *Runner) send(ctx context.Context, state *entity.ExecutionState, msg protocol.Message) (domain.SnapshotStream, error) {
	runCtx := context.WithoutCancel(ctx)
	events, err := r.client.StreamMessage(runCtx, protocol.SendMessageParams{Message: msg})
	if err != nil {
		return nil, domain.NewUnavailableError("remote agent", err)
	}

	r.logger.Debug("a2a message sent",
		"thread_id", state.SessionID,
		"message_id", msg.MessageID)

	sr, sw := schema.Pipe[*entity.Snapshot](snapshotBuffer)
	go r.pump(runCtx, state, events, sw)
	return sr, nil
}

// pump converts remote events into snapshots until the task completes,
// fails, or asks for input. It owns sw.
func (r *Runner) pump(ctx context.Context, state *entity.ExecutionState, events <-chan protocol.StreamingMessageEvent, sw *schema.StreamWriter[*entity.Snapshot]) {
	defer sw.Close()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("a2a run panicked", "thread_id", state.SessionID, "panic", p)
			sw.Send(nil, fmt.Errorf("a2a run panicked: %v", p))
		}
	}()

	reply := &artifactText{}

	emit := func() {
		snap := state.Snapshot()
		snap.Messages = append(snap.Messages, schema.AssistantMessage(reply.String(), nil))
		sw.Send(snap, nil)
	}

	for event := range events {
		switch v := event.Result.(type) {
		case *protocol.TaskArtifactUpdateEvent:
			r.track(state, v.ContextID, v.TaskID)
			if reply.apply(v.Artifact.ArtifactID, partsText(v.Artifact.Parts), v.Append != nil && *v.Append) {
				emit()
			}

		case *protocol.TaskStatusUpdateEvent:
			r.track(state, v.ContextID, v.TaskID)
			outcome, err := r.handleStatus(ctx, state, v.Status, reply, sw)
			if err != nil {
				sw.Send(nil, err)
				return
			}
			if outcome == outcomeSuspended {
				return
			}
			if outcome == outcomeCompleted || v.Final {
				r.finish(ctx, state, reply, sw)
				return
			}

		case *protocol.Task:
			r.track(state, v.ContextID, v.ID)
			changed := false
			for _, artifact := range v.Artifacts {
				if reply.apply(artifact.ArtifactID, partsText(artifact.Parts), false) {
					changed = true
				}
			}
			if changed {
				emit()
			}
			outcome, err := r.handleStatus(ctx, state, v.Status, reply, sw)
			if err != nil {
				sw.Send(nil, err)
				return
			}
			if outcome == outcomeSuspended {
				return
			}
			if outcome == outcomeCompleted {
				r.finish(ctx, state, reply, sw)
				return
			}

		case *protocol.Message:
			if reply.apply(v.MessageID, partsText(v.Parts), false) {
				emit()
			}
			r.finish(ctx, state, reply, sw)
			return

		default:
			if event.Result != nil {
				r.logger.Debug("received unhandled event type",
					"type", fmt.Sprintf("%T", event.Result),
					"kind", event.Result.GetKind())
			}
		}
	}

	// channel closed without a terminal status
	r.finish(ctx, state, reply, sw)
}

// handleStatus applies a task status. Input-required checkpoints the prompt
// and emits the interrupt snapshot.
func (r *Runner) handleStatus(ctx context.Context, state *entity.ExecutionState, status protocol.TaskStatus, reply *artifactText, sw *schema.StreamWriter[*entity.Snapshot]) (taskOutcome, error) {
	var parts []protocol.Part
	if status.Message != nil {
		parts = status.Message.Parts
	}

	switch status.State {
	case protocol.TaskStateInputRequired:
		prompt := partsPrompt(parts)
		ensureToolCallID(prompt, state.Remote.TaskID)

		if text := reply.String(); text != "" {
			state.Messages = append(state.Messages, schema.AssistantMessage(text, nil))
		}
		state.Remote.Prompt = prompt
		if err := r.persist(ctx, state); err != nil {
			return outcomeSuspended, err
		}

		snap := state.Snapshot()
		snap.Interrupt = []any{prompt}
		sw.Send(snap, nil)
		r.logger.Info("remote task waits for approval",
			"thread_id", state.SessionID,
			"task_id", state.Remote.TaskID,
			"tool_call_id", prompt["toolCallId"])
		return outcomeSuspended, nil

	case protocol.TaskStateCompleted:
		return outcomeCompleted, nil

	case protocol.TaskStateFailed, protocol.TaskStateCanceled:
		msg := strings.TrimSpace(partsText(parts))
		if msg == "" {
			msg = fmt.Sprintf("remote task %s", status.State)
		}
		r.logger.Warn("remote task ended", "thread_id", state.SessionID, "state", status.State, "message", msg)
		return outcomeCompleted, domain.NewUnavailableError("remote agent", errors.New(msg))
	}

	return outcomeRunning, nil
}

func (r *Runner) finish(ctx context.Context, state *entity.ExecutionState, reply *artifactText, sw *schema.StreamWriter[*entity.Snapshot]) {
	if text := reply.String(); text != "" {
		state.Messages = append(state.Messages, schema.AssistantMessage(text, nil))
	}
	if err := r.persist(ctx, state); err != nil {
		sw.Send(nil, err)
	}
}

func (r *Runner) track(state *entity.ExecutionState, contextID, taskID string) {
	if state.Remote == nil {
		state.Remote = &entity.RemoteTask{}
	}
	if contextID != "" {
		state.Remote.ContextID = contextID
	}
	if taskID != "" {
		state.Remote.TaskID = taskID
	}
}

func (r *Runner) persist(ctx context.Context, state *entity.ExecutionState) error {
	state.UpdatedAt = time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = state.UpdatedAt
	}
	if err := r.store.Put(ctx, state.SessionID, state); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// continueThread appends a new turn; a pending remote prompt is dropped and
// the next message opens a new task in the same remote context.
func continueThread(prev, next *entity.ExecutionState) *entity.ExecutionState {
	state := *prev
	state.Messages = append(append([]*schema.Message(nil), prev.Messages...), next.Messages...)
	state.Pending = nil
	if prev.Remote != nil {
		state.Remote = &entity.RemoteTask{ContextID: prev.Remote.ContextID}
	}

	merged := make(map[string]any, len(prev.Context)+len(next.Context))
	for k, v := range prev.Context {
		merged[k] = v
	}
	for k, v := range next.Context {
		merged[k] = v
	}
	state.Context = merged
	return &state
}

// ensureToolCallID gives a prompt without an id a stable one derived from the task.
func ensureToolCallID(prompt map[string]any, taskID string) {
	for _, key := range []string{"toolCallId", "tool_call_id", "id"} {
		if id, ok := prompt[key].(string); ok && id != "" {
			prompt["toolCallId"] = id
			return
		}
	}
	sum := uuid.NewSHA1(uuid.NameSpaceOID, []byte("a2a\x00"+taskID))
	prompt["toolCallId"] = "call_" + strings.ReplaceAll(sum.String(), "-", "")[:24]
}

// artifactText reply text assembled from artifacts in arrival order.
type artifactText struct {
	order []string
	texts map[string]string
}

// apply records a chunk and reports whether the text changed.
func (a *artifactText) apply(id, text string, appendChunk bool) bool {
	if text == "" {
		return false
	}
	if a.texts == nil {
		a.texts = map[string]string{}
	}
	prev, seen := a.texts[id]
	if !seen {
		a.order = append(a.order, id)
	}
	next := text
	if appendChunk {
		next = prev + text
	}
	if next == prev {
		return false
	}
	a.texts[id] = next
	return true
}

func (a *artifactText) String() string {
	var b strings.Builder
	for _, id := range a.order {
		b.WriteString(a.texts[id])
	}
	return b.String()
}
