package mocks

import (
	"context"

	"github.com/lvyanru/hitl-chat/internal/domain"
	"github.com/lvyanru/hitl-chat/internal/domain/entity"
)

// MockChatUsecase is a mock implementation of domain.ChatUsecase
type MockChatUsecase struct {
	ResolveFunc      func(req *entity.ChatRequest) entity.ResolvedTrigger
	StreamFunc       func(ctx context.Context, resolved entity.ResolvedTrigger) <-chan entity.Event
	InvokeFunc       func(ctx context.Context, req *entity.ChatRequest) (*entity.InvokeResult, error)
	GetThreadFunc    func(ctx context.Context, threadID string) (*entity.ExecutionState, error)
	DeleteThreadFunc func(ctx context.Context, threadID string) error
}

// Resolve mocks the Resolve method
func (m *MockChatUsecase) Resolve(req *entity.ChatRequest) entity.ResolvedTrigger {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(req)
	}
	return entity.ResolvedTrigger{
		Trigger:  entity.StreamTrigger{Kind: entity.TriggerMessage, ThreadID: req.ThreadID},
		ThreadID: req.ThreadID,
	}
}

// Stream mocks the Stream method
func (m *MockChatUsecase) Stream(ctx context.Context, resolved entity.ResolvedTrigger) <-chan entity.Event {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, resolved)
	}
	ch := make(chan entity.Event)
	close(ch)
	return ch
}

// Invoke mocks the Invoke method
func (m *MockChatUsecase) Invoke(ctx context.Context, req *entity.ChatRequest) (*entity.InvokeResult, error) {
	if m.InvokeFunc != nil {
		return m.InvokeFunc(ctx, req)
	}
	return &entity.InvokeResult{ThreadID: req.ThreadID, FinishReason: entity.FinishStop}, nil
}

// GetThread mocks the GetThread method
func (m *MockChatUsecase) GetThread(ctx context.Context, threadID string) (*entity.ExecutionState, error) {
	if m.GetThreadFunc != nil {
		return m.GetThreadFunc(ctx, threadID)
	}
	return nil, domain.NewNotFoundError("thread", threadID)
}

// DeleteThread mocks the DeleteThread method
func (m *MockChatUsecase) DeleteThread(ctx context.Context, threadID string) error {
	if m.DeleteThreadFunc != nil {
		return m.DeleteThreadFunc(ctx, threadID)
	}
	return nil
}
