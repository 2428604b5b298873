package a2a

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	a2aclient "trpc.group/trpc-go/trpc-a2a-go/client"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"

	"github.com/lvyanru/hitl-chat/internal/domain"
)

// streamer the part of the A2A client the runner uses
type streamer interface {
	StreamMessage(ctx context.Context, params protocol.SendMessageParams, opts ...a2aclient.RequestOption) (<-chan protocol.StreamingMessageEvent, error)
}

// NewRunner creates an A2A client for baseURL and a runner on top of it.
func NewRunner(baseURL string, timeout time.Duration, store domain.CheckpointStore, logger *slog.Logger) (*Runner, error) {
	client, err := a2aclient.NewA2AClient(
		baseURL,
		a2aclient.WithTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create a2a client: %w", err)
	}

	logger.Info("a2a client created", "base_url", baseURL, "timeout", timeout)

	return newRunner(client, store, logger), nil
}

// userMessage builds the outgoing A2A message. Empty ids are left unset so
// the remote agent allocates them.
func userMessage(text, contextID, taskID string, metadata map[string]any) protocol.Message {
	msg := protocol.NewMessage(
		protocol.MessageRoleUser,
		[]protocol.Part{protocol.NewTextPart(text)},
	)
	msg.MessageID = uuid.NewString()
	if contextID != "" {
		msg.ContextID = &contextID
	}
	if taskID != "" {
		msg.TaskID = &taskID
	}
	msg.Metadata = metadata
	return msg
}

// lastUserText text of the newest user message in history.
func lastUserText(messages []*schema.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == schema.User {
			return messages[i].Content
		}
	}
	return ""
}

// partsText concatenates the text parts. Parts are read through their JSON
// form, which is stable across the part types the protocol package defines.
func partsText(parts []protocol.Part) string {
	var b strings.Builder
	for _, part := range parts {
		raw, err := sonic.Marshal(part)
		if err != nil {
			continue
		}
		p := gjson.ParseBytes(raw)
		if p.Get("kind").String() == "text" {
			b.WriteString(p.Get("text").String())
		}
	}
	return b.String()
}

// partsPrompt reads the approval prompt attached to an input-required
// status: the first data part object, else a JSON object in the text, else
// the text as a message.
func partsPrompt(parts []protocol.Part) map[string]any {
	var text strings.Builder
	for _, part := range parts {
		raw, err := sonic.Marshal(part)
		if err != nil {
			continue
		}
		p := gjson.ParseBytes(raw)
		switch p.Get("kind").String() {
		case "data":
			if data := p.Get("data"); data.IsObject() {
				if m, ok := data.Value().(map[string]any); ok {
					return m
				}
			}
		case "text":
			text.WriteString(p.Get("text").String())
		}
	}

	s := strings.TrimSpace(text.String())
	if gjson.Valid(s) {
		if parsed := gjson.Parse(s); parsed.IsObject() {
			if m, ok := parsed.Value().(map[string]any); ok {
				return m
			}
		}
	}
	if s == "" {
		return map[string]any{}
	}
	return map[string]any{"message": s}
}
