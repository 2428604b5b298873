package usecase

import (
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/lvyanru/hitl-chat/internal/domain/entity"
)

// TriggerResolver classifies an inbound chat request into exactly one
// StreamTrigger. It holds no state besides the id generator.
type TriggerResolver struct {
	newID func() string
}

// NewTriggerResolver creates a resolver; a nil newID defaults to uuid v4.
func NewTriggerResolver(newID func() string) *TriggerResolver {
	if newID == nil {
		newID = uuid.NewString
	}
	return &TriggerResolver{newID: newID}
}

// Resolve inspects the most recent user message only. An approval signal in
// its parts wins over its text.
func (r *TriggerResolver) Resolve(req *entity.ChatRequest) entity.ResolvedTrigger {
	threadID := req.ThreadID
	isNew := threadID == ""
	if isNew {
		threadID = r.newID()
	}

	resolved := entity.ResolvedTrigger{ThreadID: threadID, IsNewThread: isNew}

	last := req.LastUserMessage()
	if last == nil {
		resolved.Trigger = entity.StreamTrigger{Kind: entity.TriggerMessage, ThreadID: threadID, Context: req.Context}
		return resolved
	}

	for _, part := range last.Parts {
		if !part.IsApprovalSignal() {
			continue
		}
		if isRejection(part) {
			resolved.Trigger = entity.StreamTrigger{
				Kind:       entity.TriggerReject,
				ThreadID:   threadID,
				ToolCallID: part.ToolCallID,
			}
		} else {
			resolved.Trigger = entity.StreamTrigger{
				Kind:       entity.TriggerApprove,
				ThreadID:   threadID,
				ToolCallID: part.ToolCallID,
				Payload:    part.Result,
			}
		}
		return resolved
	}

	resolved.Trigger = entity.StreamTrigger{
		Kind:     entity.TriggerMessage,
		ThreadID: threadID,
		Text:     messageText(last),
		Context:  req.Context,
	}
	return resolved
}

// messageText first text part, falling back to the raw content
func messageText(msg *entity.UIMessage) string {
	for _, part := range msg.Parts {
		if part.Type == entity.PartText {
			return part.Text
		}
	}
	return msg.Content
}

// isRejection reports whether an approval part declines the pending call:
// an explicit rejected/cancelled action, or a result object with approved=false.
func isRejection(part entity.MessagePart) bool {
	if part.Action == entity.ActionRejected || part.Action == entity.ActionCancelled {
		return true
	}
	switch result := part.Result.(type) {
	case map[string]any:
		approved, ok := result["approved"].(bool)
		return ok && !approved
	case string:
		// clients occasionally send the result object pre-serialized
		if !gjson.Valid(result) {
			return false
		}
		v := gjson.Get(result, "approved")
		return v.Type == gjson.False
	case []byte:
		if !gjson.ValidBytes(result) {
			return false
		}
		return gjson.GetBytes(result, "approved").Type == gjson.False
	}
	return false
}
