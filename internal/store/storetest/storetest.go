// Package storetest holds the behavior every store.Store backend must share.
package storetest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkscore/darkscore-server/internal/store"
)

// Opener returns a fresh, empty store. The suite closes it.
type Opener func(t *testing.T) store.Store

// Run executes the backend suite.
func Run(t *testing.T, open Opener) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"GetMissing", testGetMissing},
		{"SetGet", testSetGet},
		{"SetReplacesSubtree", testSetReplacesSubtree},
		{"CollectionAssembly", testCollectionAssembly},
		{"FieldInsideDocument", testFieldInsideDocument},
		{"MergeCreatesAndUpdates", testMerge},
		{"DeleteSubtree", testDeleteSubtree},
		{"SubscribeDocument", testSubscribeDocument},
		{"SubscribeCollection", testSubscribeCollection},
		{"Unsubscribe", testUnsubscribe},
		{"InvalidPath", testInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

type doc map[string]any

func decode(t *testing.T, snap store.Snapshot) doc {
	t.Helper()
	require.True(t, snap.Exists, "expected %s to exist", snap.Path)
	var d doc
	require.NoError(t, json.Unmarshal(snap.Value, &d))
	return d
}

func testGetMissing(t *testing.T, s store.Store) {
	snap, err := s.Get(context.Background(), "players/nobody")
	require.NoError(t, err)
	assert.False(t, snap.Exists)
	assert.Equal(t, "players/nobody", snap.Path)
}

func testSetGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "players/u1", doc{"displayName": "Ana", "email": "ana@example.com"}))

	got := decode(t, mustGet(t, s, "players/u1"))
	assert.Equal(t, "Ana", got["displayName"])
	assert.Equal(t, "ana@example.com", got["email"])

	require.NoError(t, s.Set(ctx, "players/u1", doc{"displayName": "Ana B"}))
	got = decode(t, mustGet(t, s, "players/u1"))
	assert.Equal(t, doc{"displayName": "Ana B"}, got, "set overwrites the whole document")
}

func testSetReplacesSubtree(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "invitations_sent/u1/invitations/i1", doc{"type": "Friend"}))
	require.NoError(t, s.Set(ctx, "invitations_sent/u1/invitations/i2", doc{"type": "Match"}))

	require.NoError(t, s.Set(ctx, "invitations_sent/u1/invitations", doc{"i3": doc{"type": "Friend"}}))

	got := decode(t, mustGet(t, s, "invitations_sent/u1/invitations"))
	assert.Equal(t, doc{"i3": map[string]any{"type": "Friend"}}, got)
	assert.False(t, mustGet(t, s, "invitations_sent/u1/invitations/i1").Exists)
	assert.True(t, mustGet(t, s, "invitations_sent/u1/invitations/i3").Exists)

	require.NoError(t, s.Delete(ctx, "invitations_sent/u1"))
	assert.False(t, mustGet(t, s, "invitations_sent/u1/invitations").Exists)
}

func testCollectionAssembly(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "matches/m1", doc{"title": "A"}))
	require.NoError(t, s.Set(ctx, "matches/m2", doc{"title": "B"}))
	require.NoError(t, s.Set(ctx, "players/u1", doc{"displayName": "Ana"}))

	snap := mustGet(t, s, "matches")
	children, err := snap.Children()
	require.NoError(t, err)
	require.Len(t, children, 2)

	var m1 doc
	require.NoError(t, json.Unmarshal(children["m1"], &m1))
	assert.Equal(t, "A", m1["title"])

	require.NoError(t, s.Set(ctx, "invitations_sent/u1/invitations/i1", doc{"type": "Friend"}))
	nested := decode(t, mustGet(t, s, "invitations_sent/u1"))
	assert.Contains(t, nested, "invitations")
}

func testFieldInsideDocument(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "players/u1", doc{"displayName": "Ana", "friends": []string{"u2"}}))

	snap := mustGet(t, s, "players/u1/friends")
	require.True(t, snap.Exists)
	var friends []string
	require.NoError(t, snap.Decode(&friends))
	assert.Equal(t, []string{"u2"}, friends)

	missing := mustGet(t, s, "players/u1/nickname")
	assert.False(t, missing.Exists)
}

func testMerge(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.Merge(ctx, "players/u1", map[string]any{"friends": []string{"u2"}}))
	got := decode(t, mustGet(t, s, "players/u1"))
	assert.Equal(t, []any{"u2"}, got["friends"])

	require.NoError(t, s.Set(ctx, "matches/m1", doc{"title": "A", "active": true, "players": []doc{{"id": "u1", "score": 1}}}))
	require.NoError(t, s.Merge(ctx, "matches/m1", map[string]any{"active": false, "finishedAt": "2025-01-01T00:00:00Z"}))

	got = decode(t, mustGet(t, s, "matches/m1"))
	assert.Equal(t, "A", got["title"], "untouched fields survive")
	assert.Equal(t, false, got["active"])
	assert.Equal(t, "2025-01-01T00:00:00Z", got["finishedAt"])
	assert.Len(t, got["players"], 1)
}

func testDeleteSubtree(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "matches/m1", doc{"title": "A"}))
	require.NoError(t, s.Set(ctx, "matches/m2", doc{"title": "B"}))

	require.NoError(t, s.Delete(ctx, "matches/m1"))
	assert.False(t, mustGet(t, s, "matches/m1").Exists)
	assert.True(t, mustGet(t, s, "matches/m2").Exists)

	require.NoError(t, s.Delete(ctx, "matches/never-existed"))
}

func testSubscribeDocument(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := newRecorder()

	unsub, err := s.Subscribe(ctx, "players/u1", rec.listen)
	require.NoError(t, err)
	defer unsub()

	rec.waitFor(t, func(snap store.Snapshot) bool { return !snap.Exists })

	require.NoError(t, s.Set(ctx, "players/u1", doc{"displayName": "Ana"}))
	rec.waitFor(t, func(snap store.Snapshot) bool { return snap.Exists })

	require.NoError(t, s.Merge(ctx, "players/u1", map[string]any{"friends": []string{"u2"}}))
	rec.waitFor(t, func(snap store.Snapshot) bool {
		var d doc
		return snap.Exists && json.Unmarshal(snap.Value, &d) == nil && d["friends"] != nil
	})

	require.NoError(t, s.Delete(ctx, "players/u1"))
	rec.waitFor(t, func(snap store.Snapshot) bool { return !snap.Exists })
}

func testSubscribeCollection(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := newRecorder()

	unsub, err := s.Subscribe(ctx, "matches", rec.listen)
	require.NoError(t, err)
	defer unsub()

	rec.waitFor(t, func(snap store.Snapshot) bool { return !snap.Exists })

	require.NoError(t, s.Set(ctx, "matches/m1", doc{"title": "A"}))
	require.NoError(t, s.Set(ctx, "matches/m2", doc{"title": "B"}))
	rec.waitFor(t, func(snap store.Snapshot) bool {
		children, err := snap.Children()
		return err == nil && len(children) == 2
	})

	// Unrelated paths do not wake the subscription.
	before := rec.count()
	require.NoError(t, s.Set(ctx, "players/u1", doc{"displayName": "Ana"}))
	require.NoError(t, s.Delete(ctx, "matches/m1"))
	rec.waitFor(t, func(snap store.Snapshot) bool {
		children, err := snap.Children()
		return err == nil && len(children) == 1
	})
	assert.Equal(t, before+1, rec.count())
}

func testUnsubscribe(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := newRecorder()

	unsub, err := s.Subscribe(ctx, "matches/m1", rec.listen)
	require.NoError(t, err)
	rec.waitFor(t, func(snap store.Snapshot) bool { return !snap.Exists })

	unsub()
	unsub()

	require.NoError(t, s.Set(ctx, "matches/m1", doc{"title": "A"}))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func testInvalidPath(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.Get(ctx, "")
	assert.ErrorIs(t, err, store.ErrInvalidPath)

	assert.ErrorIs(t, s.Set(ctx, "players//u1", doc{}), store.ErrInvalidPath)
	assert.ErrorIs(t, s.Delete(ctx, "../etc"), store.ErrInvalidPath)
}

func mustGet(t *testing.T, s store.Store, path string) store.Snapshot {
	t.Helper()
	snap, err := s.Get(context.Background(), path)
	require.NoError(t, err)
	return snap
}

type recorder struct {
	mu    sync.Mutex
	snaps []store.Snapshot
}

func newRecorder() *recorder {
	return &recorder{}
}

func (r *recorder) listen(snap store.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) last() (store.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return store.Snapshot{}, false
	}
	return r.snaps[len(r.snaps)-1], true
}

func (r *recorder) waitFor(t *testing.T, cond func(store.Snapshot) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap, ok := r.last()
		return ok && cond(snap)
	}, 2*time.Second, 10*time.Millisecond)
}
