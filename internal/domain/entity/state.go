package entity

import (
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/tidwall/gjson"
)

// PendingApproval tool call the run is suspended on. Remaining holds the
// tool calls of the same assistant turn that were not processed yet.
type PendingApproval struct {
	ToolCall  schema.ToolCall   `json:"toolCall"`
	Remaining []schema.ToolCall `json:"remaining,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// RemoteTask identifiers of a task delegated to a remote agent.
type RemoteTask struct {
	ContextID string `json:"contextId,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
	// Prompt the remote agent attached to its input-required status.
	Prompt map[string]any `json:"prompt,omitempty"`
}

// ExecutionState checkpointed state of one thread.
type ExecutionState struct {
	SessionID  string            `json:"sessionId"`
	Messages   []*schema.Message `json:"messages"`
	Context    map[string]any    `json:"context"`
	Pending    *PendingApproval  `json:"pending,omitempty"`
	Remote     *RemoteTask       `json:"remote,omitempty"`
	Iterations int               `json:"iterations"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Suspended reports whether the thread waits for a human decision.
func (s *ExecutionState) Suspended() bool {
	if s == nil {
		return false
	}
	return s.Pending != nil || (s.Remote != nil && s.Remote.Prompt != nil)
}

// PendingToolCallID id of the call awaiting approval, if any.
func (s *ExecutionState) PendingToolCallID() string {
	if s == nil {
		return ""
	}
	if s.Pending != nil {
		return s.Pending.ToolCall.ID
	}
	if s.Remote != nil && s.Remote.Prompt != nil {
		if id, ok := s.Remote.Prompt["toolCallId"].(string); ok {
			return id
		}
	}
	return ""
}

// PendingApproval the approval request the thread is suspended on, or nil.
func (s *ExecutionState) PendingApproval() *ApprovalRequest {
	switch {
	case s == nil:
		return nil
	case s.Pending != nil:
		call := s.Pending.ToolCall
		args := map[string]any{}
		if parsed := gjson.Parse(call.Function.Arguments); parsed.IsObject() {
			if m, ok := parsed.Value().(map[string]any); ok {
				args = m
			}
		}
		return &ApprovalRequest{ToolCallID: call.ID, ToolName: call.Function.Name, Args: args}
	case s.Remote != nil && s.Remote.Prompt != nil:
		req := &ApprovalRequest{ToolCallID: s.PendingToolCallID(), ToolName: DefaultApprovalToolName, Args: map[string]any{}}
		if name, ok := s.Remote.Prompt["toolName"].(string); ok && name != "" {
			req.ToolName = name
		}
		if args, ok := s.Remote.Prompt["args"].(map[string]any); ok {
			req.Args = args
		}
		return req
	}
	return nil
}

// Snapshot cumulative view of the state.
func (s *ExecutionState) Snapshot() *Snapshot {
	msgs := make([]*schema.Message, len(s.Messages))
	copy(msgs, s.Messages)
	ctx := make(map[string]any, len(s.Context))
	for k, v := range s.Context {
		ctx[k] = v
	}
	return &Snapshot{Messages: msgs, Context: ctx}
}
