package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// FlatReader is implemented by backends that keep one entry per written path.
type FlatReader interface {
	// Lookup returns the document stored exactly at path.
	Lookup(ctx context.Context, path string) ([]byte, bool, error)
	// Scan returns every document stored strictly beneath prefix, keyed by full path.
	Scan(ctx context.Context, prefix string) (map[string][]byte, error)
}

// Resolve reads path from a flat backend with tree semantics: an exact document wins,
// then a field inside an ancestor document, then an object assembled from descendants.
func Resolve(ctx context.Context, r FlatReader, path string) (Snapshot, error) {
	snap := Snapshot{Path: path}

	value, ok, err := r.Lookup(ctx, path)
	if err != nil {
		return snap, err
	}
	if ok {
		snap.Value, snap.Exists = value, true
		return snap, nil
	}

	segs := Segments(path)
	for i := len(segs) - 1; i > 0; i-- {
		ancestor := Join(segs[:i]...)
		doc, ok, err := r.Lookup(ctx, ancestor)
		if err != nil {
			return snap, err
		}
		if !ok {
			continue
		}
		sub, found, err := Extract(doc, segs[i:])
		if err != nil {
			return snap, fmt.Errorf("extract %s from %s: %w", path, ancestor, err)
		}
		snap.Value, snap.Exists = sub, found
		return snap, nil
	}

	docs, err := r.Scan(ctx, path)
	if err != nil {
		return snap, err
	}
	return Assemble(path, docs)
}

// Assemble nests documents found beneath base into a single JSON object.
func Assemble(base string, docs map[string][]byte) (Snapshot, error) {
	snap := Snapshot{Path: base}
	if len(docs) == 0 {
		return snap, nil
	}

	root := make(map[string]any)
	for path, doc := range docs {
		if !IsBeneath(path, base) {
			continue
		}
		segs := Segments(path[len(base)+1:])
		node := root
		for _, seg := range segs[:len(segs)-1] {
			child, ok := node[seg].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[seg] = child
			}
			node = child
		}
		node[segs[len(segs)-1]] = json.RawMessage(doc)
	}
	if len(root) == 0 {
		return snap, nil
	}

	value, err := json.Marshal(root)
	if err != nil {
		return snap, fmt.Errorf("assemble %s: %w", base, err)
	}
	snap.Value, snap.Exists = value, true
	return snap, nil
}

// Extract walks into a JSON document along keys.
func Extract(doc []byte, keys []string) (json.RawMessage, bool, error) {
	current := json.RawMessage(doc)
	for _, key := range keys {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(current, &obj); err != nil {
			// Scalars and arrays have no children.
			return nil, false, nil //nolint:nilerr // not an object
		}
		next, ok := obj[key]
		if !ok || string(next) == "null" {
			return nil, false, nil
		}
		current = next
	}
	return current, true, nil
}

// ShallowMerge applies fields over the top-level keys of existing.
// A nil field value removes the key. A missing or non-object existing value starts empty.
func ShallowMerge(existing []byte, fields map[string]any) ([]byte, error) {
	obj := make(map[string]json.RawMessage)
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &obj); err != nil {
			obj = make(map[string]json.RawMessage)
		}
	}

	for key, value := range fields {
		if value == nil {
			delete(obj, key)
			continue
		}
		raw, err := Encode(value)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", key, err)
		}
		obj[key] = raw
	}

	return json.Marshal(obj)
}
