package feed

import (
	"context"
	"sync"

	"github.com/m-mizutani/omoide/pkg/model"
)

// Memory is an in-process change feed. repository.Memory publishes to it, and a
// single listener drains it in arrival order.
type Memory struct {
	mu        sync.Mutex
	queue     []*model.EntryChange
	seq       int64
	closed    bool
	notify    chan struct{}
	batchSize int
}

type MemoryOption func(*Memory)

func WithMemoryBatchSize(n int) MemoryOption {
	return func(f *Memory) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	f := &Memory{
		notify:    make(chan struct{}, 1),
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Publish enqueues change without blocking. Records published after Close are discarded.
func (f *Memory) Publish(ctx context.Context, change *model.EntryChange) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.seq++
	c := *change
	c.Sequence = f.seq
	f.queue = append(f.queue, &c)
	f.mu.Unlock()

	f.signal()
}

// Close lets Listen return once the queued records are delivered
func (f *Memory) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	f.signal()
}

func (f *Memory) signal() {
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

func (f *Memory) take() ([]*model.EntryChange, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := min(len(f.queue), f.batchSize)
	batch := f.queue[:n:n]
	f.queue = f.queue[n:]
	return batch, f.closed
}

func (f *Memory) Listen(ctx context.Context, h Handler) error {
	for {
		batch, closed := f.take()
		if len(batch) > 0 {
			if err := h(ctx, batch); err != nil {
				return err
			}
			continue
		}
		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-f.notify:
		}
	}
}
