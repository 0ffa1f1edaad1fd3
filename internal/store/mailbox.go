package store

import (
	"context"
	"sync"
)

// Mailbox delivers snapshots to one callback from its own goroutine. It
// holds at most one pending snapshot: a newer offer replaces an undelivered
// older one, so a lagging callback skips straight to the latest state.
type Mailbox struct {
	fn func(Snapshot)

	mu       sync.Mutex
	pending  *Snapshot
	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewMailbox creates a mailbox for fn. Call Run to start delivery.
func NewMailbox(fn func(Snapshot)) *Mailbox {
	return &Mailbox{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Offer queues snap, replacing any undelivered snapshot. It never blocks.
func (b *Mailbox) Offer(snap Snapshot) {
	b.mu.Lock()
	b.pending = &snap
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Stop ends delivery. A callback already running completes.
func (b *Mailbox) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
}

// Done is closed once Stop has been called.
func (b *Mailbox) Done() <-chan struct{} {
	return b.done
}

// Run delivers snapshots until Stop is called or ctx is done.
func (b *Mailbox) Run(ctx context.Context) {
	for {
		select {
		case <-b.done:
			return
		case <-ctx.Done():
			return
		case <-b.wake:
		}

		b.mu.Lock()
		snap := b.pending
		b.pending = nil
		b.mu.Unlock()
		if snap == nil {
			continue
		}

		select {
		case <-b.done:
			return
		default:
		}
		b.fn(*snap)
	}
}
