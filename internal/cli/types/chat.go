package types

// MessagePart one part of a chat message
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

// UIMessage chat message
type UIMessage struct {
	ID      string        `json:"id,omitempty"`
	Role    string        `json:"role"`
	Content string        `json:"content"`
	Parts   []MessagePart `json:"parts,omitempty"`
}

// ChatRequest body of POST /api/chat and /api/chat/invoke
type ChatRequest struct {
	ThreadID string         `json:"threadId,omitempty"`
	Messages []UIMessage    `json:"messages"`
	Context  map[string]any `json:"context,omitempty"`
}

// Stream event types
const (
	EventSession           = "session"
	EventStatus            = "status"
	EventTextDelta         = "text-delta"
	EventTextEnd           = "text-end"
	EventToolCall          = "tool-call"
	EventToolResult        = "tool-result"
	EventApprovalRequested = "approval-requested"
	EventFinish            = "finish"
	EventError             = "error"
)

// Usage token usage of a finish event
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// StreamEvent one SSE data frame
type StreamEvent struct {
	Type         string         `json:"type"`
	ThreadID     string         `json:"threadId,omitempty"`
	MessageID    string         `json:"messageId,omitempty"`
	Message      string         `json:"message,omitempty"`
	Code         string         `json:"code,omitempty"`
	Content      string         `json:"content,omitempty"`
	ToolCallID   string         `json:"toolCallId,omitempty"`
	ToolName     string         `json:"toolName,omitempty"`
	Args         map[string]any `json:"args,omitempty"`
	Result       any            `json:"result,omitempty"`
	FinishReason string         `json:"finishReason,omitempty"`
	Usage        *Usage         `json:"usage,omitempty"`
}

// Approval pending approval of a thread
type Approval struct {
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName"`
	Args       map[string]any `json:"args"`
}

// InvokeResponse body of POST /api/chat/invoke
type InvokeResponse struct {
	ThreadID     string    `json:"threadId"`
	Content      string    `json:"content"`
	Interrupted  bool      `json:"interrupted"`
	Approval     *Approval `json:"approval,omitempty"`
	ToolResult   any       `json:"toolResult,omitempty"`
	FinishReason string    `json:"finishReason,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// ToolCall tool call of an assistant message
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ThreadMessage message of a thread's history
type ThreadMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
}

// Thread body of GET /api/chat/threads/:threadId
type Thread struct {
	ThreadID        string          `json:"threadId"`
	Messages        []ThreadMessage `json:"messages"`
	Context         map[string]any  `json:"context"`
	PendingApproval *Approval       `json:"pendingApproval,omitempty"`
	CreatedAt       string          `json:"createdAt,omitempty"`
	UpdatedAt       string          `json:"updatedAt,omitempty"`
}

// APIResponse generic API response envelope
type APIResponse[T any] struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// TextMessage a plain user message
func TextMessage(text string) UIMessage {
	return UIMessage{Role: "user", Content: text}
}

// DecisionMessage a user message carrying a decision on the pending call
func DecisionMessage(toolCallID, toolName string, approved bool) UIMessage {
	action := "approved"
	text := "Approved"
	if !approved {
		action = "rejected"
		text = "Rejected"
	}
	return UIMessage{
		Role:    "user",
		Content: text,
		Parts: []MessagePart{{
			Type:       "tool-result",
			ToolCallID: toolCallID,
			ToolName:   toolName,
			IsApproval: true,
			Action:     action,
		}},
	}
}
