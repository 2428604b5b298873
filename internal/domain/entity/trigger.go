package entity

// TriggerKind resolved intent of one chat request
type TriggerKind string

const (
	TriggerMessage TriggerKind = "message"
	TriggerApprove TriggerKind = "approve"
	TriggerReject  TriggerKind = "reject"
)

// StreamTrigger exactly one of Message, Approve or Reject.
//
// Text is set for Message. ToolCallID and Payload are set for Approve;
// ToolCallID for Reject. Context carries the optional request context and
// only applies to Message.
type StreamTrigger struct {
	Kind       TriggerKind
	ThreadID   string
	Text       string
	ToolCallID string
	Payload    any
	Context    map[string]any
}

// IsResume reports whether the trigger resumes a suspended run.
func (t StreamTrigger) IsResume() bool {
	return t.Kind == TriggerApprove || t.Kind == TriggerReject
}

// Approved reports the decision carried by a resume trigger.
func (t StreamTrigger) Approved() bool {
	return t.Kind == TriggerApprove
}

// ResumePayload value injected into the suspended step.
func (t StreamTrigger) ResumePayload() any {
	switch t.Kind {
	case TriggerReject:
		return map[string]any{"approved": false}
	case TriggerApprove:
		if t.Payload == nil {
			return map[string]any{"approved": true}
		}
		return t.Payload
	}
	return nil
}

// ResolvedTrigger output of trigger resolution
type ResolvedTrigger struct {
	Trigger     StreamTrigger
	ThreadID    string
	IsNewThread bool
}
