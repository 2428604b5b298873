package usecase

import (
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/lvyanru/hitl-chat/internal/domain"
	"github.com/lvyanru/hitl-chat/internal/domain/entity"
)

// TextCursor last text sent to the client within one request.
type TextCursor struct {
	sent string
}

// Advance returns the part of text the client has not seen yet.
// A strict extension yields the unseen suffix, unrelated text yields the
// whole text, unchanged or empty text yields "".
func (c *TextCursor) Advance(text string) string {
	if text == "" || text == c.sent {
		return ""
	}
	delta := text
	if strings.HasPrefix(text, c.sent) {
		delta = text[len(c.sent):]
	}
	c.sent = text
	return delta
}

// Sent text the cursor has advanced to.
func (c *TextCursor) Sent() string {
	return c.sent
}

// EmitFunc receives translated events; returning false stops translation.
type EmitFunc func(entity.Event) bool

// EventTranslator turns a run's snapshot sequence into protocol events.
type EventTranslator struct {
	newMessageID func() string
	logger       *slog.Logger
}

// NewEventTranslator creates a translator; a nil newMessageID defaults to uuid v4.
func NewEventTranslator(newMessageID func() string, logger *slog.Logger) *EventTranslator {
	if newMessageID == nil {
		newMessageID = uuid.NewString
	}
	return &EventTranslator{newMessageID: newMessageID, logger: logger}
}

// Translate consumes exec.Snapshots in a single pass and closes it.
func (t *EventTranslator) Translate(exec *domain.Execution, emit EmitFunc) {
	defer exec.Snapshots.Close()

	trigger := exec.Trigger
	messageID := t.newMessageID()

	if !emit(initialStatus(trigger)) {
		return
	}

	var (
		cursor TextCursor
		last   *entity.Snapshot
		usage  *entity.Usage
	)
	for {
		snap, err := exec.Snapshots.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.logger.Error("run failed", "thread_id", trigger.ThreadID, "error", err)
			emit(entity.ErrorEvent(domain.UserMessage(err), domain.ErrorCode(err)))
			return
		}
		if snap == nil {
			continue
		}

		if snap.Status != nil {
			if !emit(entity.StatusEvent(snap.Status.Code, snap.Status.Message)) {
				return
			}
			continue
		}

		if snap.Interrupted() {
			req := NormalizeInterrupt(snap.Interrupt[0])
			if !emit(entity.ToolCallEvent(messageID, req)) {
				return
			}
			emit(entity.ApprovalRequestedEvent(messageID, req))
			return
		}

		if snap.Usage != nil {
			usage = snap.Usage
		}
		last = snap
		if delta := cursor.Advance(snap.LastText()); delta != "" {
			if !emit(entity.TextDeltaEvent(messageID, delta)) {
				return
			}
		}
	}

	if !emit(entity.TextEndEvent(messageID)) {
		return
	}

	if !trigger.IsResume() {
		emit(entity.FinishEvent(entity.FinishStop).WithUsage(usage))
		return
	}

	approved := trigger.Approved()
	var result any = map[string]any{"applied": approved}
	if last != nil && last.Context != nil {
		result = last.Context
	}
	toolCallID := trigger.ToolCallID
	if toolCallID == "" {
		toolCallID = entity.DefaultApprovalToolName
	}
	if !emit(entity.ToolResultEvent(messageID, toolCallID, result)) {
		return
	}

	reason := entity.FinishStop
	if !approved {
		reason = entity.FinishError
	}
	emit(entity.FinishEvent(reason).WithUsage(usage))
}

func initialStatus(trigger entity.StreamTrigger) entity.Event {
	switch trigger.Kind {
	case entity.TriggerApprove:
		return entity.StatusEvent(entity.StatusExecuting, entity.StatusMessageApplying)
	case entity.TriggerReject:
		return entity.StatusEvent(entity.StatusExecuting, entity.StatusMessageCancelling)
	default:
		return entity.StatusEvent(entity.StatusThinking, entity.StatusMessagePlanning)
	}
}

var (
	idKeys   = []string{"toolCallId", "tool_call_id", "id"}
	nameKeys = []string{"toolName", "tool_name", "name", "tool", "action"}
	argsKeys = []string{"args", "arguments", "input", "params"}
)

// NormalizeInterrupt coerces an interrupt payload into an approval request.
// A payload without an id gets one derived from its tool name and arguments,
// so the same payload always yields the same id.
func NormalizeInterrupt(payload any) entity.ApprovalRequest {
	var req entity.ApprovalRequest

	switch v := payload.(type) {
	case entity.ApprovalRequest:
		req = v
	case *entity.ApprovalRequest:
		if v != nil {
			req = *v
		}
	case map[string]any:
		req = approvalFromMap(v)
	case string:
		if obj, ok := parseObject(v); ok {
			req = approvalFromMap(obj)
		} else {
			req.Args = map[string]any{"message": v}
		}
	case nil:
	default:
		if raw, err := sonic.MarshalString(v); err == nil {
			if obj, ok := parseObject(raw); ok {
				req = approvalFromMap(obj)
			}
		}
	}

	if req.ToolName == "" {
		req.ToolName = entity.DefaultApprovalToolName
	}
	if req.Args == nil {
		req.Args = map[string]any{}
	}
	if req.ToolCallID == "" {
		req.ToolCallID = syntheticToolCallID(req.ToolName, req.Args)
	}
	return req
}

func approvalFromMap(m map[string]any) entity.ApprovalRequest {
	var req entity.ApprovalRequest
	if s, ok := firstString(m, idKeys); ok {
		req.ToolCallID = s
	}
	if s, ok := firstString(m, nameKeys); ok {
		req.ToolName = s
	}
	for _, key := range argsKeys {
		raw, ok := m[key]
		if !ok || raw == nil {
			continue
		}
		req.Args = argsObject(raw)
		return req
	}
	return req
}

func argsObject(raw any) map[string]any {
	switch args := raw.(type) {
	case map[string]any:
		return args
	case string:
		if obj, ok := parseObject(args); ok {
			return obj
		}
	}
	return map[string]any{"value": raw}
}

func firstString(m map[string]any, keys []string) (string, bool) {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func parseObject(s string) (map[string]any, bool) {
	if !gjson.Valid(s) {
		return nil, false
	}
	parsed := gjson.Parse(s)
	if !parsed.IsObject() {
		return nil, false
	}
	obj, ok := parsed.Value().(map[string]any)
	return obj, ok
}

func syntheticToolCallID(toolName string, args map[string]any) string {
	// ConfigStd sorts map keys
	raw, err := sonic.ConfigStd.Marshal(args)
	if err != nil {
		raw = nil
	}
	name := append([]byte(toolName+"\x00"), raw...)
	return "call_" + strings.ReplaceAll(uuid.NewSHA1(uuid.NameSpaceOID, name).String(), "-", "")[:24]
}
