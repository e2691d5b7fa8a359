// Package store defines the remote document store the state containers sync against.
//
// Data lives in a tree addressed by slash-separated paths such as
// "matches/match-123". A value written at a path is a JSON document; reading an
// interior path returns an object assembling every document beneath it, keyed
// by the next path segment. Subscriptions deliver the current value first and
// then again whenever anything at, above or below the path changes.
//
// Backends live in subpackages: badgerdb, sqlite, redisdb and firestoredb.
package store

import (
	"context"
	"encoding/json"
)

// Snapshot is the value at a path at one point in time.
type Snapshot struct {
	Path   string
	Value  json.RawMessage
	Exists bool
}

// Decode unmarshals the snapshot value into dest.
// It is a no-op for snapshots that do not exist.
func (s Snapshot) Decode(dest any) error {
	if !s.Exists || len(s.Value) == 0 {
		return nil
	}
	return json.Unmarshal(s.Value, dest)
}

// Children returns the raw child values of an interior path.
func (s Snapshot) Children() (map[string]json.RawMessage, error) {
	children := make(map[string]json.RawMessage)
	if !s.Exists || len(s.Value) == 0 {
		return children, nil
	}
	if err := json.Unmarshal(s.Value, &children); err != nil {
		return nil, err
	}
	return children, nil
}

// Listener receives snapshots pushed by a subscription.
type Listener func(Snapshot)

// Unsubscribe stops a subscription. It is safe to call more than once.
type Unsubscribe func()

// Store is a hierarchical document store with change subscriptions.
type Store interface {
	// Get reads the value at path. Missing paths yield a snapshot with Exists=false.
	Get(ctx context.Context, path string) (Snapshot, error)
	// Set overwrites the value at path, replacing anything beneath it.
	Set(ctx context.Context, path string, value any) error
	// Merge sets the given top-level fields of the document at path, creating it if needed.
	Merge(ctx context.Context, path string, fields map[string]any) error
	// Delete removes the value at path and everything beneath it.
	Delete(ctx context.Context, path string) error
	// Subscribe calls fn with the current value and after every related change.
	Subscribe(ctx context.Context, path string, fn Listener) (Unsubscribe, error)
	// Close releases the store's resources and stops all subscriptions.
	Close() error
}

// Encode marshals a value for storage. Raw JSON is passed through.
func Encode(value any) ([]byte, error) {
	switch v := value.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}
