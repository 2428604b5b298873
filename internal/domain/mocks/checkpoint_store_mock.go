package mocks

import (
	"context"
	"sync"

	"github.com/lvyanru/hitl-chat/internal/domain"
	"github.com/lvyanru/hitl-chat/internal/domain/entity"
)

// MockCheckpointStore is a mock implementation of domain.CheckpointStore.
// Without Func overrides it behaves as a plain map.
type MockCheckpointStore struct {
	GetFunc    func(ctx context.Context, threadID string) (*entity.ExecutionState, error)
	PutFunc    func(ctx context.Context, threadID string, state *entity.ExecutionState) error
	DeleteFunc func(ctx context.Context, threadID string) error
	PingFunc   func(ctx context.Context) error

	mu     sync.Mutex
	states map[string]*entity.ExecutionState
}

// Get mocks the Get method
func (m *MockCheckpointStore) Get(ctx context.Context, threadID string) (*entity.ExecutionState, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, threadID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[threadID]; ok {
		return s, nil
	}
	return nil, domain.NewNotFoundError("thread", threadID)
}

// Put mocks the Put method
func (m *MockCheckpointStore) Put(ctx context.Context, threadID string, state *entity.ExecutionState) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, threadID, state)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states == nil {
		m.states = make(map[string]*entity.ExecutionState)
	}
	m.states[threadID] = state
	return nil
}

// Delete mocks the Delete method
func (m *MockCheckpointStore) Delete(ctx context.Context, threadID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, threadID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, threadID)
	return nil
}

// Ping mocks the Ping method
func (m *MockCheckpointStore) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// Close mocks the Close method
func (m *MockCheckpointStore) Close() error {
	return nil
}
