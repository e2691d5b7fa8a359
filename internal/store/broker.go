package store

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

// Loader reads the current snapshot of a path. Backends pass their Get.
type Loader func(ctx context.Context, path string) (Snapshot, error)

// Broker fans change notifications out to subscriptions.
//
// Each subscription runs on its own goroutine and is signaled through a one-slot
// channel, so a burst of changes collapses into a single re-read. Snapshots are
// delivered in order and only when the value differs from the last delivery.
type Broker struct {
	load   Loader
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool
	wg     sync.WaitGroup
}

type subscription struct {
	path   string
	fn     Listener
	signal chan struct{}
	cancel context.CancelFunc
}

// NewBroker creates a broker that re-reads paths with load.
func NewBroker(load Loader, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		load:   load,
		logger: logger,
		subs:   make(map[uint64]*subscription),
	}
}

// Subscribe registers fn for path. The first snapshot is delivered asynchronously.
func (b *Broker) Subscribe(ctx context.Context, path string, fn Listener) (Unsubscribe, error) {
	path, err := Clean(path)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &subscription{
		path:   path,
		fn:     fn,
		signal: make(chan struct{}, 1),
		cancel: cancel,
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.wg.Add(1)
	b.mu.Unlock()

	// Initial delivery.
	sub.signal <- struct{}{}
	go b.run(subCtx, sub)

	// Stop with the caller's context as well.
	stop := context.AfterFunc(ctx, func() { b.remove(id) })

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			b.remove(id)
		})
	}, nil
}

// Notify marks every subscription related to the changed path as dirty.
func (b *Broker) Notify(changed string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if !Related(sub.path, changed) {
			continue
		}
		select {
		case sub.signal <- struct{}{}:
		default:
			// Already pending; the next read sees this change too.
		}
	}
}

// Len returns the number of live subscriptions.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close stops every subscription and waits for in-flight deliveries.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		sub.cancel()
		delete(b.subs, id)
	}
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *Broker) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		sub.cancel()
		delete(b.subs, id)
	}
}

func (b *Broker) run(ctx context.Context, sub *subscription) {
	defer b.wg.Done()

	var (
		last      Snapshot
		delivered bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.signal:
		}

		snap, err := b.load(ctx, sub.path)
		if err != nil {
			if ctx.Err() == nil {
				b.logger.Warn("subscription reload failed", "path", sub.path, "error", err)
			}
			continue
		}
		if delivered && snap.Exists == last.Exists && bytes.Equal(snap.Value, last.Value) {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		last, delivered = snap, true
		sub.fn(snap)
	}
}
