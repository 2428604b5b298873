package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

const (
	CurrentTimeToolName        = "current_time"
	CurrentTimeToolDescription = "Returns the current server time, optionally in a given IANA time zone."

	SetContextToolName        = "set_context"
	SetContextToolDescription = "Stores a key/value pair in the conversation context. Requires human approval."
)

// threadScope gives tools access to the context map of the running thread.
type threadScope struct {
	mu      sync.Mutex
	context map[string]any
}

type scopeKey struct{}

func withThreadScope(ctx context.Context, scope *threadScope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

func threadScopeFrom(ctx context.Context) (*threadScope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(*threadScope)
	return scope, ok
}

type CurrentTimeParams struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA time zone such as Europe/Berlin. Defaults to UTC."`
}

type CurrentTimeResult struct {
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
}

func CurrentTime(ctx context.Context, params CurrentTimeParams) (CurrentTimeResult, error) {
	name := params.Timezone
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return CurrentTimeResult{}, fmt.Errorf("unknown time zone %q", name)
	}
	return CurrentTimeResult{Time: time.Now().In(loc).Format(time.RFC3339), Timezone: name}, nil
}

type SetContextParams struct {
	Key   string `json:"key" jsonschema:"required,description=Context key to write."`
	Value string `json:"value" jsonschema:"required,description=Value to store under the key."`
}

type SetContextResult struct {
	Applied bool   `json:"applied"`
	Key     string `json:"key"`
	Value   string `json:"value"`
}

func SetContext(ctx context.Context, params SetContextParams) (SetContextResult, error) {
	if params.Key == "" {
		return SetContextResult{}, fmt.Errorf("key is required")
	}
	scope, ok := threadScopeFrom(ctx)
	if !ok {
		return SetContextResult{}, fmt.Errorf("set_context called outside of a thread")
	}
	scope.mu.Lock()
	scope.context[params.Key] = params.Value
	scope.mu.Unlock()
	return SetContextResult{Applied: true, Key: params.Key, Value: params.Value}, nil
}

// DefaultTools the built-in tool set.
func DefaultTools() ([]tool.InvokableTool, error) {
	currentTime, err := utils.InferTool(CurrentTimeToolName, CurrentTimeToolDescription, CurrentTime)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s tool: %w", CurrentTimeToolName, err)
	}
	setContext, err := utils.InferTool(SetContextToolName, SetContextToolDescription, SetContext)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s tool: %w", SetContextToolName, err)
	}
	return []tool.InvokableTool{currentTime, setContext}, nil
}

// toolInfos resolves the schema of every tool, keyed by name.
func toolInfos(ctx context.Context, tools []tool.InvokableTool) ([]*schema.ToolInfo, map[string]tool.InvokableTool, error) {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	byName := make(map[string]tool.InvokableTool, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, nil, err
		}
		infos = append(infos, info)
		byName[info.Name] = t
	}
	return infos, byName, nil
}
