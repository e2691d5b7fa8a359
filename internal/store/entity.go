package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
)

// Collection provides typed access to the documents under one root path.
type Collection[T any] struct {
	store Store
	root  string
	setID func(*T, string)
}

// NewCollection creates a typed view of root. setID receives each record's key after
// decoding, since keys are not part of the stored value.
func NewCollection[T any](s Store, root string, setID func(*T, string)) *Collection[T] {
	return &Collection[T]{store: s, root: root, setID: setID}
}

// Root returns the collection path.
func (c *Collection[T]) Root() string {
	return c.root
}

// Path returns the path of the record with id.
func (c *Collection[T]) Path(id string) string {
	return Join(c.root, id)
}

// Get reads one record. The boolean is false when it does not exist.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var entity T
	snap, err := c.store.Get(ctx, c.Path(id))
	if err != nil {
		return entity, false, err
	}
	if !snap.Exists {
		return entity, false, nil
	}
	entity, err = c.decode(id, snap.Value)
	if err != nil {
		return entity, false, err
	}
	return entity, true, nil
}

// Set overwrites a record.
func (c *Collection[T]) Set(ctx context.Context, id string, entity T) error {
	return c.store.Set(ctx, c.Path(id), entity)
}

// Merge updates top-level fields of a record.
func (c *Collection[T]) Merge(ctx context.Context, id string, fields map[string]any) error {
	return c.store.Merge(ctx, c.Path(id), fields)
}

// Delete removes a record.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.store.Delete(ctx, c.Path(id))
}

// List returns an iterator over all records ordered by key.
// Records that fail to decode are yielded as errors; the consumer may keep going.
func (c *Collection[T]) List(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		snap, err := c.store.Get(ctx, c.root)
		if err != nil {
			yield(zero, err)
			return
		}
		children, err := snap.Children()
		if err != nil {
			yield(zero, fmt.Errorf("decode %s: %w", c.root, err))
			return
		}

		for _, id := range slices.Sorted(maps.Keys(children)) {
			if ctx.Err() != nil {
				yield(zero, ctx.Err())
				return
			}
			entity, err := c.decode(id, children[id])
			if !yield(entity, err) {
				return
			}
		}
	}
}

// Find returns the first record, in key order, for which match is true.
func (c *Collection[T]) Find(ctx context.Context, match func(T) bool) (T, bool, error) {
	var zero T
	for entity, err := range c.List(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				return zero, false, err
			}
			continue
		}
		if match(entity) {
			return entity, true, nil
		}
	}
	return zero, false, nil
}

// Subscribe pushes the decoded collection, ordered by key, on every change.
// Malformed records are skipped and reported through the error argument.
func (c *Collection[T]) Subscribe(ctx context.Context, fn func([]T, error)) (Unsubscribe, error) {
	return c.store.Subscribe(ctx, c.root, func(snap Snapshot) {
		fn(c.DecodeAll(snap))
	})
}

// SubscribeOne pushes a single record on every change. The boolean is false when it is absent.
func (c *Collection[T]) SubscribeOne(ctx context.Context, id string, fn func(T, bool, error)) (Unsubscribe, error) {
	return c.store.Subscribe(ctx, c.Path(id), func(snap Snapshot) {
		var zero T
		if !snap.Exists {
			fn(zero, false, nil)
			return
		}
		entity, err := c.decode(id, snap.Value)
		fn(entity, err == nil, err)
	})
}

// DecodeAll decodes a collection snapshot.
func (c *Collection[T]) DecodeAll(snap Snapshot) ([]T, error) {
	children, err := snap.Children()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.root, err)
	}

	out := make([]T, 0, len(children))
	var errs []error
	for _, id := range slices.Sorted(maps.Keys(children)) {
		entity, err := c.decode(id, children[id])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, entity)
	}
	return out, errors.Join(errs...)
}

func (c *Collection[T]) decode(id string, raw json.RawMessage) (T, error) {
	var entity T
	if err := json.Unmarshal(raw, &entity); err != nil {
		return entity, fmt.Errorf("decode %s: %w", c.Path(id), err)
	}
	if c.setID != nil {
		c.setID(&entity, id)
	}
	return entity, nil
}
