// Package queue buffers rows between the producers that accept them and the
// periodic writers that persist them in batches.
package queue

import (
	"sync"
)

// Batch collects items for a batched write. Drain hands the whole backlog to a
// writer; whatever the writer does not accept goes back ahead of items pushed in
// the meantime, so a retried flush keeps arrival order.
type Batch[T any] struct {
	mu      sync.Mutex
	items   []T
	limit   int
	dropped int
}

// New creates a Batch holding at most limit items. A limit of zero or less is unbounded.
func New[T any](limit int) *Batch[T] {
	return &Batch[T]{limit: limit}
}

// Push appends items and returns how many were accepted. Items past the limit
// are dropped and counted.
func (b *Batch[T]) Push(items ...T) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(items)
	if b.limit > 0 {
		n = min(n, max(b.limit-len(b.items), 0))
	}
	b.items = append(b.items, items[:n]...)
	b.dropped += len(items) - n
	return n
}

// Len returns the number of buffered items.
func (b *Batch[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Dropped returns how many items Push refused since the Batch was created.
func (b *Batch[T]) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Drain passes the backlog to write outside the lock. write reports how many
// leading items it persisted; on error the rest are requeued at the front.
// Requeued items are never dropped, even past the limit.
func (b *Batch[T]) Drain(write func([]T) (int, error)) (int, error) {
	b.mu.Lock()
	items := b.items
	b.items = nil
	b.mu.Unlock()

	if len(items) == 0 {
		return 0, nil
	}
	n, err := write(items)
	n = min(max(n, 0), len(items))
	if err != nil {
		b.mu.Lock()
		b.items = append(items[n:len(items):len(items)], b.items...)
		b.mu.Unlock()
	}
	return n, err
}
