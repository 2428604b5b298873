package mocks

import (
	"context"
	"io"
	"sync"

	"github.com/lvyanru/hitl-chat/internal/domain"
	"github.com/lvyanru/hitl-chat/internal/domain/entity"
)

// MockAgentRunner is a mock implementation of domain.AgentRunner
type MockAgentRunner struct {
	StartFunc  func(ctx context.Context, state *entity.ExecutionState) (domain.SnapshotStream, error)
	ResumeFunc func(ctx context.Context, threadID string, payload any) (domain.SnapshotStream, error)
}

// Start mocks the Start method
func (m *MockAgentRunner) Start(ctx context.Context, state *entity.ExecutionState) (domain.SnapshotStream, error) {
	if m.StartFunc != nil {
		return m.StartFunc(ctx, state)
	}
	return NewSnapshotStream(), nil
}

// Resume mocks the Resume method
func (m *MockAgentRunner) Resume(ctx context.Context, threadID string, payload any) (domain.SnapshotStream, error) {
	if m.ResumeFunc != nil {
		return m.ResumeFunc(ctx, threadID, payload)
	}
	return NewSnapshotStream(), nil
}

// MockExecutionDriver is a mock implementation of domain.ExecutionDriver
type MockExecutionDriver struct {
	DriveFunc func(ctx context.Context, trigger entity.StreamTrigger) (*domain.Execution, error)
}

// Drive mocks the Drive method
func (m *MockExecutionDriver) Drive(ctx context.Context, trigger entity.StreamTrigger) (*domain.Execution, error) {
	if m.DriveFunc != nil {
		return m.DriveFunc(ctx, trigger)
	}
	return &domain.Execution{Trigger: trigger, Snapshots: NewSnapshotStream()}, nil
}

// SnapshotStream replays fixed snapshots, then Err (io.EOF when nil).
type SnapshotStream struct {
	Snapshots []*entity.Snapshot
	Err       error

	mu     sync.Mutex
	pos    int
	closed bool
}

// NewSnapshotStream stream over snapshots that ends with io.EOF
func NewSnapshotStream(snapshots ...*entity.Snapshot) *SnapshotStream {
	return &SnapshotStream{Snapshots: snapshots}
}

// Recv returns the next snapshot
func (s *SnapshotStream) Recv() (*entity.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, io.EOF
	}
	if s.pos < len(s.Snapshots) {
		snap := s.Snapshots[s.pos]
		s.pos++
		return snap, nil
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return nil, io.EOF
}

// Close marks the stream closed
func (s *SnapshotStream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Closed reports whether Close was called
func (s *SnapshotStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Consumed number of snapshots handed out
func (s *SnapshotStream) Consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}
