package entity

import (
	"github.com/cloudwego/eino/schema"
)

// DefaultApprovalToolName names approval requests that carry no tool name,
// and stands in for the tool call id when neither the trigger nor the pending
// approval names one.
const DefaultApprovalToolName = "human_approval"

// ApprovalRequest payload of an interrupt marker raised by a local run.
type ApprovalRequest struct {
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName"`
	Args       map[string]any `json:"args"`
}

// StatusSignal status passed through from a collaborator (e.g. a stall
// watchdog) instead of a state update.
type StatusSignal struct {
	Code    StatusCode
	Message string
}

// Snapshot cumulative point-in-time view of an execution.
//
// Interrupt, when non-empty, means the run suspended; its first element is
// the pending approval payload. The payload is intentionally untyped: local
// runs emit ApprovalRequest, remote runs emit decoded JSON objects.
type Snapshot struct {
	Messages  []*schema.Message
	Context   map[string]any
	Interrupt []any
	Status    *StatusSignal
	// Usage tokens spent by the run, set on its last snapshot
	Usage *Usage
}

// Interrupted reports whether the snapshot carries an interrupt marker.
func (s *Snapshot) Interrupted() bool {
	return s != nil && len(s.Interrupt) > 0
}

// LastText trailing text of the last message.
func (s *Snapshot) LastText() string {
	if s == nil || len(s.Messages) == 0 {
		return ""
	}
	last := s.Messages[len(s.Messages)-1]
	if last == nil {
		return ""
	}
	return last.Content
}
