package entity

// EventType discriminant of a protocol event
type EventType string

const (
	EventSession           EventType = "session"
	EventStatus            EventType = "status"
	EventTextDelta         EventType = "text-delta"
	EventTextEnd           EventType = "text-end"
	EventToolCall          EventType = "tool-call"
	EventToolResult        EventType = "tool-result"
	EventApprovalRequested EventType = "approval-requested"
	EventError             EventType = "error"
	EventFinish            EventType = "finish"
)

// StatusCode machine-readable status
type StatusCode string

const (
	StatusThinking  StatusCode = "thinking"
	StatusExecuting StatusCode = "executing"
	StatusTimeout   StatusCode = "timeout"
)

// Human-readable status messages.
const (
	StatusMessagePlanning   = "Planning..."
	StatusMessageApplying   = "Applying approved action..."
	StatusMessageCancelling = "Cancelling rejected action..."
	StatusMessageStalled    = "Still working..."
)

// FinishReason why a stream finished
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCall      FinishReason = "tool-call"
	FinishContentFilter FinishReason = "content-filter"
	FinishError         FinishReason = "error"
	FinishAbort         FinishReason = "abort"
)

// Usage token accounting attached to a finish event
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Add accumulates the tokens of one model turn.
func (u *Usage) Add(prompt, completion int) {
	u.PromptTokens += prompt
	u.CompletionTokens += completion
}

func (u Usage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0
}

// Event protocol event. Only the fields relevant to Type are populated.
type Event struct {
	Type EventType

	ThreadID string

	// status / error
	Message string
	Code    string

	// text-delta
	Content string

	// tool-call / approval-requested / tool-result
	ToolCallID string
	ToolName   string
	Args       any
	Result     any

	// finish
	FinishReason FinishReason
	Usage        *Usage

	MessageID string
}

// Terminal reports whether no further event may follow e.
func (e Event) Terminal() bool {
	return e.Type == EventError || e.Type == EventFinish || e.Type == EventApprovalRequested
}

func SessionEvent(threadID string) Event {
	return Event{Type: EventSession, ThreadID: threadID}
}

func StatusEvent(code StatusCode, message string) Event {
	return Event{Type: EventStatus, Code: string(code), Message: message}
}

func TextDeltaEvent(messageID, content string) Event {
	return Event{Type: EventTextDelta, MessageID: messageID, Content: content}
}

func TextEndEvent(messageID string) Event {
	return Event{Type: EventTextEnd, MessageID: messageID}
}

func ToolCallEvent(messageID string, req ApprovalRequest) Event {
	return Event{Type: EventToolCall, MessageID: messageID, ToolCallID: req.ToolCallID, ToolName: req.ToolName, Args: req.Args}
}

func ApprovalRequestedEvent(messageID string, req ApprovalRequest) Event {
	return Event{Type: EventApprovalRequested, MessageID: messageID, ToolCallID: req.ToolCallID, ToolName: req.ToolName, Args: req.Args}
}

func ToolResultEvent(messageID, toolCallID string, result any) Event {
	return Event{Type: EventToolResult, MessageID: messageID, ToolCallID: toolCallID, Result: result}
}

func ErrorEvent(message, code string) Event {
	return Event{Type: EventError, Message: message, Code: code}
}

func FinishEvent(reason FinishReason) Event {
	return Event{Type: EventFinish, FinishReason: reason}
}

// WithUsage attaches token usage to a finish event.
func (e Event) WithUsage(u *Usage) Event {
	if u != nil && !u.IsZero() {
		e.Usage = u
	}
	return e
}

// InvokeResult aggregate of one request's events, for non-streaming callers.
type InvokeResult struct {
	ThreadID     string
	Content      string
	Interrupted  bool
	Approval     *ApprovalRequest
	ToolResult   any
	FinishReason FinishReason
	Error        string
}
