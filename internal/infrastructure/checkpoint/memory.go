package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/lvyanru/hitl-chat/internal/domain"
	"github.com/lvyanru/hitl-chat/internal/domain/entity"
)

const defaultEvictInterval = 5 * time.Minute

type memoryEntry struct {
	data       []byte
	lastAccess time.Time
}

// MemoryStore in-process checkpoint store. Threads untouched for longer than
// ttl are evicted; a zero ttl keeps them until deleted.
type MemoryStore struct {
	mu       sync.RWMutex
	threads  map[string]*memoryEntry
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewMemoryStore creates the store and starts eviction when ttl > 0.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return newMemoryStore(ttl, defaultEvictInterval)
}

func newMemoryStore(ttl, every time.Duration) *MemoryStore {
	s := &MemoryStore{
		threads: make(map[string]*memoryEntry),
		ttl:     ttl,
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	if ttl > 0 {
		go s.evictLoop(every)
	}
	return s
}

func (s *MemoryStore) Get(ctx context.Context, threadID string) (*entity.ExecutionState, error) {
	s.mu.Lock()
	entry, ok := s.threads[threadID]
	if ok {
		entry.lastAccess = s.now()
	}
	s.mu.Unlock()
	if !ok {
		return nil, domain.NewNotFoundError("thread", threadID)
	}
	return decodeState(entry.data)
}

func (s *MemoryStore) Put(ctx context.Context, threadID string, state *entity.ExecutionState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = &memoryEntry{data: data, lastAccess: s.now()}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Len number of stored threads.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}

// Close stops eviction. Stored threads are kept.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryStore) evictLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.evict()
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) evict() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	for id, entry := range s.threads {
		if entry.lastAccess.Before(cutoff) {
			delete(s.threads, id)
		}
	}
}
