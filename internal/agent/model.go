package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const (
	EchoProvider     = "echo"
	OpenAIProvider   = "openai"
	DeepSeekProvider = "deepseek"
	ArkProvider      = "ark"
)

// ModelConfig provider selection for NewChatModel
type ModelConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NewChatModel builds the chat model of a provider.
func NewChatModel(ctx context.Context, cfg ModelConfig) (model.ToolCallingChatModel, error) {
	switch cfg.Provider {
	case EchoProvider, "":
		return NewEchoModel(), nil
	case OpenAIProvider:
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	case DeepSeekProvider:
		return deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	case ArkProvider:
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	default:
	}

	return nil, fmt.Errorf("unsupported model provider: %s", cfg.Provider)
}

// EchoModel deterministic stand-in for an LLM.
//
// Plain input gets a placeholder reply streamed word by word. Two commands
// produce tool calls so approval flows work without a provider:
//
//	/set <key>=<value>   calls set_context
//	/time [zone]         calls current_time
type EchoModel struct {
	tools map[string]bool
}

func NewEchoModel() *EchoModel {
	return &EchoModel{tools: map[string]bool{}}
}

func (m *EchoModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if len(input) == 0 {
		return schema.AssistantMessage("", nil), nil
	}
	last := input[len(input)-1]
	if last.Role == schema.Tool {
		return schema.AssistantMessage(toolReply(input, last), nil), nil
	}

	text := strings.TrimSpace(last.Content)
	switch {
	case strings.HasPrefix(text, "/set ") && m.tools[SetContextToolName]:
		key, value, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(text, "/set ")), "=")
		if ok && strings.TrimSpace(key) != "" {
			args, _ := sonic.MarshalString(map[string]any{"key": strings.TrimSpace(key), "value": strings.TrimSpace(value)})
			return toolCallMessage(SetContextToolName, args), nil
		}
	case (text == "/time" || strings.HasPrefix(text, "/time ")) && m.tools[CurrentTimeToolName]:
		args, _ := sonic.MarshalString(map[string]any{"timezone": strings.TrimSpace(strings.TrimPrefix(text, "/time"))})
		return toolCallMessage(CurrentTimeToolName, args), nil
	}

	return schema.AssistantMessage(fmt.Sprintf(
		"I received your message: %q. This is a placeholder response. Please integrate your actual LLM provider here.",
		last.Content), nil), nil
}

func (m *EchoModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	if len(msg.ToolCalls) > 0 || msg.Content == "" {
		return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
	}

	words := strings.SplitAfter(msg.Content, " ")
	chunks := make([]*schema.Message, 0, len(words))
	for _, w := range words {
		chunks = append(chunks, schema.AssistantMessage(w, nil))
	}
	return schema.StreamReaderFromArray(chunks), nil
}

func (m *EchoModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	bound := &EchoModel{tools: make(map[string]bool, len(tools))}
	for _, t := range tools {
		bound.tools[t.Name] = true
	}
	return bound, nil
}

func toolCallMessage(name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:   "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24],
		Type: "function",
		Function: schema.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}})
}

// toolReply summarizes the tool message that ends input.
func toolReply(input []*schema.Message, result *schema.Message) string {
	name := "tool"
	for i := len(input) - 1; i >= 0; i-- {
		for _, call := range input[i].ToolCalls {
			if call.ID == result.ToolCallID {
				name = call.Function.Name
			}
		}
	}

	switch gjson.Get(result.Content, "status").String() {
	case toolStatusRejected:
		return fmt.Sprintf("Understood, I did not run %s.", name)
	case toolStatusCancelled:
		return fmt.Sprintf("The pending %s call was cancelled.", name)
	}
	if errMsg := gjson.Get(result.Content, "error"); errMsg.Exists() {
		return fmt.Sprintf("%s failed: %s", name, errMsg.String())
	}
	return fmt.Sprintf("Done. %s returned %s", name, result.Content)
}
