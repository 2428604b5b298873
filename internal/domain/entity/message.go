package entity

// MessageRole author of a chat message
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleData      MessageRole = "data"
	RoleTool      MessageRole = "tool"
)

// Valid reports whether r is a known role.
func (r MessageRole) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleData, RoleTool:
		return true
	}
	return false
}

// PartType discriminates message parts
type PartType string

const (
	PartText           PartType = "text"
	PartToolInvocation PartType = "tool-invocation"
	PartToolResult     PartType = "tool-result"
)

// Valid reports whether t is a known part type.
func (t PartType) Valid() bool {
	switch t {
	case PartText, PartToolInvocation, PartToolResult:
		return true
	}
	return false
}

// ToolAction user decision attached to a tool-result part
type ToolAction string

const (
	ActionApproved  ToolAction = "approved"
	ActionRejected  ToolAction = "rejected"
	ActionCancelled ToolAction = "cancelled"
)

// Valid reports whether a is a known action. The empty action is valid.
func (a ToolAction) Valid() bool {
	switch a {
	case "", ActionApproved, ActionRejected, ActionCancelled:
		return true
	}
	return false
}

// MessagePart one semantic unit of a chat message.
// Only the fields relevant to Type are populated.
type MessagePart struct {
	Type PartType

	// text
	Text string

	// tool-invocation / tool-result
	ToolCallID string
	ToolName   string
	State      string
	Args       any
	Result     any

	// tool-result approval signal
	IsApproval bool
	Action     ToolAction
}

// IsApprovalSignal reports whether the part carries a human decision on a
// pending tool call.
func (p MessagePart) IsApprovalSignal() bool {
	return p.Type == PartToolResult && p.IsApproval
}

// UIMessage chat message as sent by the client
type UIMessage struct {
	ID      string
	Role    MessageRole
	Content string
	Parts   []MessagePart
}

// ChatRequest inbound chat request after transport validation
type ChatRequest struct {
	ThreadID string
	Messages []UIMessage
	Context  map[string]any
}

// LastUserMessage returns the most recent user-authored message, or nil.
func (r *ChatRequest) LastUserMessage() *UIMessage {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return &r.Messages[i]
		}
	}
	return nil
}
