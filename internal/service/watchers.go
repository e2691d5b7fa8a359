package service

import (
	"maps"
	"slices"
	"sync"

	"github.com/darkscore/darkscore-server/internal/store"
)

// watchers fans state snapshots out to registered callbacks.
// Deliveries are serialized so every watcher sees snapshots in the order they were taken.
type watchers[S any] struct {
	publishMu sync.Mutex

	mu     sync.Mutex
	fns    map[uint64]func(S)
	nextID uint64
}

// add registers fn and hands it a first snapshot taken with snap. Later
// publishes reach fn only after that first snapshot.
func (w *watchers[S]) add(fn func(S), snap func() S) func() {
	w.publishMu.Lock()
	defer w.publishMu.Unlock()

	w.mu.Lock()
	if w.fns == nil {
		w.fns = make(map[uint64]func(S))
	}
	id := w.nextID
	w.nextID++
	w.fns[id] = fn
	w.mu.Unlock()

	fn(snap())

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.fns, id)
	}
}

// publish takes a snapshot with snap and hands it to every watcher.
func (w *watchers[S]) publish(snap func() S) {
	w.publishMu.Lock()
	defer w.publishMu.Unlock()

	state := snap()

	w.mu.Lock()
	fns := make([]func(S), 0, len(w.fns))
	for _, id := range slices.Sorted(maps.Keys(w.fns)) {
		fns = append(fns, w.fns[id])
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// subscriptions holds the store subscriptions that belong to one signed-in user.
type subscriptions []store.Unsubscribe

func (s subscriptions) cancel() {
	for _, unsub := range s {
		unsub()
	}
}
