package usecase

import (
	"io"
	"sync"
	"time"

	"github.com/lvyanru/hitl-chat/internal/domain"
	"github.com/lvyanru/hitl-chat/internal/domain/entity"
)

type recvResult struct {
	snap *entity.Snapshot
	err  error
}

// stallWatchdog wraps a snapshot stream and yields a timeout status snapshot
// when the run stays silent for longer than timeout. One status per stall;
// the run itself is never cancelled.
type stallWatchdog struct {
	inner   domain.SnapshotStream
	timeout time.Duration
	items   chan recvResult
	done    chan struct{}
	once    sync.Once
	stalled bool
}

// WatchStalls decorates stream with a stall watchdog. A non-positive timeout
// returns stream unchanged.
func WatchStalls(stream domain.SnapshotStream, timeout time.Duration) domain.SnapshotStream {
	if timeout <= 0 {
		return stream
	}
	w := &stallWatchdog{
		inner:   stream,
		timeout: timeout,
		items:   make(chan recvResult),
		done:    make(chan struct{}),
	}
	go w.pump()
	return w
}

func (w *stallWatchdog) pump() {
	for {
		snap, err := w.inner.Recv()
		select {
		case w.items <- recvResult{snap: snap, err: err}:
		case <-w.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// Recv implements domain.SnapshotStream.
func (w *stallWatchdog) Recv() (*entity.Snapshot, error) {
	if w.stalled {
		select {
		case r := <-w.items:
			w.stalled = false
			return r.snap, r.err
		case <-w.done:
			return nil, io.EOF
		}
	}

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()
	select {
	case r := <-w.items:
		return r.snap, r.err
	case <-timer.C:
		w.stalled = true
		return &entity.Snapshot{Status: &entity.StatusSignal{
			Code:    entity.StatusTimeout,
			Message: entity.StatusMessageStalled,
		}}, nil
	case <-w.done:
		return nil, io.EOF
	}
}

// Close implements domain.SnapshotStream.
func (w *stallWatchdog) Close() {
	w.once.Do(func() {
		close(w.done)
		w.inner.Close()
	})
}
