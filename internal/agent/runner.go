package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/tidwall/gjson"

	"github.com/lvyanru/hitl-chat/internal/domain"
	"github.com/lvyanru/hitl-chat/internal/domain/entity"
)

const (
	defaultMaxIterations = 8
	snapshotBuffer       = 16

	toolStatusRejected  = "rejected"
	toolStatusCancelled = "cancelled"
)

// Options runner tunables
type Options struct {
	SystemPrompt  string
	MaxIterations int
	// ApprovalTools names the tools that suspend the run until a human decides.
	ApprovalTools []string
}

// Runner suspend/resume-capable agent over an eino chat model.
//
// A run is a loop of model turns and tool calls. Tools listed in
// Options.ApprovalTools suspend the run: the pending call is checkpointed,
// a snapshot with an interrupt marker is emitted, and the snapshot stream
// ends. Resume picks the call up from the checkpoint.
type Runner struct {
	model    model.ToolCallingChatModel
	tools    map[string]tool.InvokableTool
	approval map[string]bool
	store    domain.CheckpointStore
	opts     Options
	logger   *slog.Logger
}

// NewRunner binds tools to chatModel and creates the runner.
func NewRunner(
	ctx context.Context,
	chatModel model.ToolCallingChatModel,
	tools []tool.InvokableTool,
	store domain.CheckpointStore,
	opts Options,
	logger *slog.Logger,
) (*Runner, error) {
	infos, byName, err := toolInfos(ctx, tools)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tools: %w", err)
	}

	bound := chatModel
	if len(infos) > 0 {
		bound, err = chatModel.WithTools(infos)
		if err != nil {
			return nil, fmt.Errorf("failed to bind tools: %w", err)
		}
	}

	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaultMaxIterations
	}
	approval := make(map[string]bool, len(opts.ApprovalTools))
	for _, name := range opts.ApprovalTools {
		approval[name] = true
	}

	return &Runner{
		model:    bound,
		tools:    byName,
		approval: approval,
		store:    store,
		opts:     opts,
		logger:   logger,
	}, nil
}

// Start implements domain.AgentRunner. The thread's history, if any, is
// continued; an approval still pending on the thread is cancelled.
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
	state.Iterations = 0

	if err := r.persist(ctx, state); err != nil {
		return nil, err
	}

	sr, sw := schema.Pipe[*entity.Snapshot](snapshotBuffer)
	go r.execute(context.WithoutCancel(ctx), state, nil, sw)
	return sr, nil
}

// Resume implements domain.AgentRunner.
func (r *Runner) Resume(ctx context.Context, threadID string, payload any) (domain.SnapshotStream, error) {
	state, err := r.store.Get(ctx, threadID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewNoPendingApprovalError(threadID)
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if state.Pending == nil {
		return nil, domain.NewNoPendingApprovalError(threadID)
	}
	if state.Context == nil {
		state.Context = map[string]any{}
	}
	state.Iterations = 0

	d := parseDecision(payload)
	sr, sw := schema.Pipe[*entity.Snapshot](snapshotBuffer)
	go r.execute(context.WithoutCancel(ctx), state, &d, sw)
	return sr, nil
}

// execute drives the run to completion or suspension. It owns sw. Sends on
// a stream whose reader went away are dropped; the run still finishes so the
// checkpoint stays consistent.
func (r *Runner) execute(ctx context.Context, state *entity.ExecutionState, d *decision, sw *schema.StreamWriter[*entity.Snapshot]) {
	defer sw.Close()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("agent run panicked", "thread_id", state.SessionID, "panic", p)
			sw.Send(nil, fmt.Errorf("agent run panicked: %v", p))
		}
	}()

	if d != nil {
		suspended, err := r.applyDecision(ctx, state, *d, sw)
		if err != nil {
			sw.Send(nil, err)
			return
		}
		if suspended {
			return
		}
	}

	var usage entity.Usage
	for state.Iterations < r.opts.MaxIterations {
		state.Iterations++

		msg, err := r.generate(ctx, state, sw)
		if err != nil {
			r.logger.Error("model turn failed", "thread_id", state.SessionID, "error", err)
			sw.Send(nil, err)
			return
		}
		if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
			usage.Add(msg.ResponseMeta.Usage.PromptTokens, msg.ResponseMeta.Usage.CompletionTokens)
		}
		state.Messages = append(state.Messages, msg)
		if err := r.persist(ctx, state); err != nil {
			sw.Send(nil, err)
			return
		}

		if len(msg.ToolCalls) == 0 {
			if !usage.IsZero() {
				snap := state.Snapshot()
				snap.Usage = &usage
				sw.Send(snap, nil)
			}
			return
		}
		suspended, err := r.runToolCalls(ctx, state, msg.ToolCalls, sw)
		if err != nil {
			sw.Send(nil, err)
			return
		}
		if suspended {
			return
		}
	}

	sw.Send(nil, fmt.Errorf("agent stopped after %d iterations without a final answer", r.opts.MaxIterations))
}

// applyDecision answers the pending call, then processes the remaining calls
// of the same assistant turn.
func (r *Runner) applyDecision(ctx context.Context, state *entity.ExecutionState, d decision, sw *schema.StreamWriter[*entity.Snapshot]) (bool, error) {
	pending := state.Pending
	state.Pending = nil
	call := pending.ToolCall

	var content string
	if d.approved {
		if d.args != "" {
			call.Function.Arguments = d.args
		}
		content = r.invoke(ctx, state, call)
		r.logger.Info("pending tool call approved", "thread_id", state.SessionID, "tool", call.Function.Name)
	} else {
		content = toolStatus(toolStatusRejected, "the user rejected this tool call")
		r.logger.Info("pending tool call rejected", "thread_id", state.SessionID, "tool", call.Function.Name)
	}
	state.Messages = append(state.Messages, schema.ToolMessage(content, call.ID))

	suspended, err := r.runToolCalls(ctx, state, pending.Remaining, sw)
	if err != nil || suspended {
		return suspended, err
	}
	return false, r.persist(ctx, state)
}

// runToolCalls executes calls in order until one needs approval.
func (r *Runner) runToolCalls(ctx context.Context, state *entity.ExecutionState, calls []schema.ToolCall, sw *schema.StreamWriter[*entity.Snapshot]) (bool, error) {
	for i, call := range calls {
		if r.approval[call.Function.Name] {
			state.Pending = &entity.PendingApproval{
				ToolCall:  call,
				Remaining: append([]schema.ToolCall(nil), calls[i+1:]...),
				CreatedAt: time.Now(),
			}
			if err := r.persist(ctx, state); err != nil {
				return false, err
			}

			snap := state.Snapshot()
			snap.Interrupt = []any{approvalRequest(call)}
			sw.Send(snap, nil)
			r.logger.Info("run suspended for approval",
				"thread_id", state.SessionID,
				"tool", call.Function.Name,
				"tool_call_id", call.ID)
			return true, nil
		}

		content := r.invoke(ctx, state, call)
		state.Messages = append(state.Messages, schema.ToolMessage(content, call.ID))
	}
	return false, nil
}

// generate streams one model turn, emitting a cumulative snapshot per text chunk.
func (r *Runner) generate(ctx context.Context, state *entity.ExecutionState, sw *schema.StreamWriter[*entity.Snapshot]) (*schema.Message, error) {
	input := state.Messages
	if r.opts.SystemPrompt != "" {
		input = append([]*schema.Message{schema.SystemMessage(r.opts.SystemPrompt)}, state.Messages...)
	}

	stream, err := r.model.Stream(ctx, input)
	if err != nil {
		return nil, domain.NewUnavailableError("chat model", err)
	}
	defer stream.Close()

	var (
		chunks []*schema.Message
		text   strings.Builder
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chat model stream failed: %w", err)
		}
		chunks = append(chunks, chunk)
		if chunk.Content == "" {
			continue
		}
		text.WriteString(chunk.Content)

		snap := state.Snapshot()
		snap.Messages = append(snap.Messages, schema.AssistantMessage(text.String(), nil))
		sw.Send(snap, nil)
	}

	if len(chunks) == 0 {
		return schema.AssistantMessage("", nil), nil
	}
	msg, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to concat model output: %w", err)
	}
	return msg, nil
}

func (r *Runner) invoke(ctx context.Context, state *entity.ExecutionState, call schema.ToolCall) string {
	t, ok := r.tools[call.Function.Name]
	if !ok {
		return toolError(fmt.Sprintf("tool not found: %s", call.Function.Name))
	}

	scope := &threadScope{context: state.Context}
	out, err := t.InvokableRun(withThreadScope(ctx, scope), call.Function.Arguments)
	if err != nil {
		r.logger.Warn("tool call failed", "thread_id", state.SessionID, "tool", call.Function.Name, "error", err)
		return toolError(err.Error())
	}
	return out
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

// continueThread appends a new turn to an existing thread. A pending
// approval is cancelled with synthetic tool messages so the history stays
// well-formed for providers that require an answer to every tool call.
func continueThread(prev, next *entity.ExecutionState) *entity.ExecutionState {
	state := *prev
	state.Messages = append([]*schema.Message(nil), prev.Messages...)

	if prev.Pending != nil {
		calls := append([]schema.ToolCall{prev.Pending.ToolCall}, prev.Pending.Remaining...)
		for _, call := range calls {
			state.Messages = append(state.Messages,
				schema.ToolMessage(toolStatus(toolStatusCancelled, "superseded by a new user message"), call.ID))
		}
		state.Pending = nil
	}
	state.Remote = nil
	state.Messages = append(state.Messages, next.Messages...)

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

type decision struct {
	approved bool
	args     string
}

// parseDecision reads {approved?, args?} from a resume payload.
func parseDecision(payload any) decision {
	d := decision{approved: true}
	m, ok := payload.(map[string]any)
	if !ok {
		return d
	}
	if approved, ok := m["approved"].(bool); ok {
		d.approved = approved
	}
	switch args := m["args"].(type) {
	case map[string]any:
		if raw, err := sonic.MarshalString(args); err == nil {
			d.args = raw
		}
	case string:
		if gjson.Valid(args) && gjson.Parse(args).IsObject() {
			d.args = args
		}
	}
	return d
}

func approvalRequest(call schema.ToolCall) entity.ApprovalRequest {
	args := map[string]any{}
	if parsed := gjson.Parse(call.Function.Arguments); parsed.IsObject() {
		if m, ok := parsed.Value().(map[string]any); ok {
			args = m
		}
	}
	return entity.ApprovalRequest{
		ToolCallID: call.ID,
		ToolName:   call.Function.Name,
		Args:       args,
	}
}

func toolStatus(status, message string) string {
	out, _ := sonic.MarshalString(map[string]string{"status": status, "message": message})
	return out
}

func toolError(message string) string {
	out, _ := sonic.MarshalString(map[string]string{"error": message})
	return out
}
