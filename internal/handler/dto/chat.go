package dto

import (
	"fmt"
	"time"

	"github.com/lvyanru/hitl-chat/internal/domain"
	"github.com/lvyanru/hitl-chat/internal/domain/entity"
)

// ============ Request ============

// MessagePart one part of a UI message (HTTP)
type MessagePart struct {
	Type       string `json:"type"` // text, tool-invocation, tool-result
	Text       string `json:"text,omitempty"`
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	State      string `json:"state,omitempty"`
	Args       any    `json:"args,omitempty"`
	Result     any    `json:"result,omitempty"`
	IsApproval bool   `json:"isApproval,omitempty"`
	Action     string `json:"action,omitempty"` // approved, rejected, cancelled
}

// UIMessage chat message (HTTP)
type UIMessage struct {
	ID      string        `json:"id"`
	Role    string        `json:"role"`
	Content string        `json:"content"`
	Parts   []MessagePart `json:"parts"`
}

// ChatRequest body of POST /api/chat and /api/chat/invoke
type ChatRequest struct {
	ThreadID string         `json:"threadId,omitempty"`
	Messages []UIMessage    `json:"messages"`
	Context  map[string]any `json:"context,omitempty"`
}

// Validate checks the request shape. Errors are InvalidInput domain errors.
func (r *ChatRequest) Validate() error {
	if r.Messages == nil {
		return domain.NewInvalidInputError("messages is required")
	}
	for i, m := range r.Messages {
		if !entity.MessageRole(m.Role).Valid() {
			return domain.NewInvalidInputError(fmt.Sprintf("messages[%d].role: invalid value %q", i, m.Role))
		}
		for j, p := range m.Parts {
			if err := validatePart(p); err != nil {
				return domain.NewInvalidInputError(fmt.Sprintf("messages[%d].parts[%d].%s", i, j, err))
			}
		}
	}
	return nil
}

func validatePart(p MessagePart) error {
	switch entity.PartType(p.Type) {
	case entity.PartText:
	case entity.PartToolInvocation, entity.PartToolResult:
		if p.ToolCallID == "" {
			return fmt.Errorf("toolCallId: required for %s parts", p.Type)
		}
		if p.ToolName == "" {
			return fmt.Errorf("toolName: required for %s parts", p.Type)
		}
	default:
		return fmt.Errorf("type: invalid value %q", p.Type)
	}
	if !entity.ToolAction(p.Action).Valid() {
		return fmt.Errorf("action: invalid value %q", p.Action)
	}
	return nil
}

// ToEntity validates and converts the request
func (r *ChatRequest) ToEntity() (*entity.ChatRequest, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	msgs := make([]entity.UIMessage, len(r.Messages))
	for i, m := range r.Messages {
		parts := make([]entity.MessagePart, len(m.Parts))
		for j, p := range m.Parts {
			parts[j] = entity.MessagePart{
				Type:       entity.PartType(p.Type),
				Text:       p.Text,
				ToolCallID: p.ToolCallID,
				ToolName:   p.ToolName,
				State:      p.State,
				Args:       p.Args,
				Result:     p.Result,
				IsApproval: p.IsApproval,
				Action:     entity.ToolAction(p.Action),
			}
		}
		msgs[i] = entity.UIMessage{
			ID:      m.ID,
			Role:    entity.MessageRole(m.Role),
			Content: m.Content,
			Parts:   parts,
		}
	}
	return &entity.ChatRequest{
		ThreadID: r.ThreadID,
		Messages: msgs,
		Context:  r.Context,
	}, nil
}

// ============ SSE ============

// Usage token usage of a finish event
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// StreamEvent one SSE data frame
type StreamEvent struct {
	Type         string `json:"type"`
	ThreadID     string `json:"threadId,omitempty"`
	MessageID    string `json:"messageId,omitempty"`
	Message      string `json:"message,omitempty"`
	Code         string `json:"code,omitempty"`
	Content      string `json:"content,omitempty"`
	ToolCallID   string `json:"toolCallId,omitempty"`
	ToolName     string `json:"toolName,omitempty"`
	Args         any    `json:"args,omitempty"`
	Result       any    `json:"result,omitempty"`
	FinishReason string `json:"finishReason,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
}

// ToStreamEvent converts a protocol event to its wire form
func ToStreamEvent(e entity.Event) StreamEvent {
	out := StreamEvent{
		Type:         string(e.Type),
		ThreadID:     e.ThreadID,
		MessageID:    e.MessageID,
		Message:      e.Message,
		Code:         e.Code,
		Content:      e.Content,
		ToolCallID:   e.ToolCallID,
		ToolName:     e.ToolName,
		Args:         e.Args,
		Result:       e.Result,
		FinishReason: string(e.FinishReason),
	}
	switch e.Type {
	case entity.EventToolCall, entity.EventApprovalRequested:
		if out.Args == nil {
			out.Args = map[string]any{}
		}
	}
	if e.Usage != nil {
		out.Usage = &Usage{PromptTokens: e.Usage.PromptTokens, CompletionTokens: e.Usage.CompletionTokens}
	}
	return out
}

// ============ Invoke ============

// ApprovalResponse pending approval (HTTP)
type ApprovalResponse struct {
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName"`
	Args       map[string]any `json:"args"`
}

// InvokeResponse body of POST /api/chat/invoke
type InvokeResponse struct {
	ThreadID     string            `json:"threadId"`
	Content      string            `json:"content"`
	Interrupted  bool              `json:"interrupted"`
	Approval     *ApprovalResponse `json:"approval,omitempty"`
	ToolResult   any               `json:"toolResult,omitempty"`
	FinishReason string            `json:"finishReason,omitempty"`
	Error        string            `json:"error,omitempty"`
}

func toApprovalResponse(req *entity.ApprovalRequest) *ApprovalResponse {
	if req == nil {
		return nil
	}
	args := req.Args
	if args == nil {
		args = map[string]any{}
	}
	return &ApprovalResponse{ToolCallID: req.ToolCallID, ToolName: req.ToolName, Args: args}
}

// ToInvokeResponse converts entity.InvokeResult to InvokeResponse DTO
func ToInvokeResponse(res *entity.InvokeResult) *InvokeResponse {
	return &InvokeResponse{
		ThreadID:     res.ThreadID,
		Content:      res.Content,
		Interrupted:  res.Interrupted,
		Approval:     toApprovalResponse(res.Approval),
		ToolResult:   res.ToolResult,
		FinishReason: string(res.FinishReason),
		Error:        res.Error,
	}
}

// ============ Threads ============

// ToolCallResponse tool call of an assistant message (HTTP)
type ToolCallResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ThreadMessage message of a thread's history (HTTP)
type ThreadMessage struct {
	Role       string             `json:"role"`
	Content    string             `json:"content"`
	ToolCalls  []ToolCallResponse `json:"toolCalls,omitempty"`
	ToolCallID string             `json:"toolCallId,omitempty"`
}

// ThreadResponse body of GET /api/chat/threads/:threadId
type ThreadResponse struct {
	ThreadID        string            `json:"threadId"`
	Messages        []ThreadMessage   `json:"messages"`
	Context         map[string]any    `json:"context"`
	PendingApproval *ApprovalResponse `json:"pendingApproval,omitempty"`
	CreatedAt       string            `json:"createdAt,omitempty"`
	UpdatedAt       string            `json:"updatedAt,omitempty"`
}

// ToThreadResponse converts entity.ExecutionState to ThreadResponse DTO
func ToThreadResponse(threadID string, state *entity.ExecutionState) *ThreadResponse {
	msgs := make([]ThreadMessage, 0, len(state.Messages))
	for _, m := range state.Messages {
		if m == nil {
			continue
		}
		tm := ThreadMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			tm.ToolCalls = append(tm.ToolCalls, ToolCallResponse{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
		}
		msgs = append(msgs, tm)
	}

	ctx := state.Context
	if ctx == nil {
		ctx = map[string]any{}
	}

	resp := &ThreadResponse{
		ThreadID:        threadID,
		Messages:        msgs,
		Context:         ctx,
		PendingApproval: toApprovalResponse(state.PendingApproval()),
	}
	if !state.CreatedAt.IsZero() {
		resp.CreatedAt = state.CreatedAt.Format(time.RFC3339)
	}
	if !state.UpdatedAt.IsZero() {
		resp.UpdatedAt = state.UpdatedAt.Format(time.RFC3339)
	}
	return resp
}
