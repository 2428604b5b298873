package checkpoint

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/lvyanru/hitl-chat/internal/domain/entity"
)

func encodeState(state *entity.ExecutionState) ([]byte, error) {
	data, err := sonic.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return data, nil
}

func decodeState(data []byte) (*entity.ExecutionState, error) {
	var state entity.ExecutionState
	if err := sonic.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if state.Context == nil {
		state.Context = map[string]any{}
	}
	return &state, nil
}
