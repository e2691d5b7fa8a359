package store_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkscore/darkscore-server/internal/domain"
	"github.com/darkscore/darkscore-server/internal/store"
	"github.com/darkscore/darkscore-server/internal/store/badgerdb"
)

func newMatches(t *testing.T) (*store.Collection[domain.Match], store.Store) {
	t.Helper()
	s, err := badgerdb.OpenInMemory(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return store.NewCollection(s, store.MatchesPath, func(m *domain.Match, id string) { m.ID = id }), s
}

func TestCollection_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	matches, _ := newMatches(t)

	_, ok, err := matches.Get(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, ok)

	m := domain.NewMatch("m1", "Friday", "Catan", domain.Profile{ID: "u1", DisplayName: "Ana"})
	m.ID = "" // keys are not stored
	require.NoError(t, matches.Set(ctx, "m1", m))

	got, ok, err := matches.Get(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "m1", got.ID, "id comes from the key")
	assert.Equal(t, "Catan", got.GameTitle)

	require.NoError(t, matches.Merge(ctx, "m1", map[string]any{"active": false}))
	got, _, err = matches.Get(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, "Friday", got.Title)

	require.NoError(t, matches.Delete(ctx, "m1"))
	_, ok, err = matches.Get(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCollection_ListAndFind(t *testing.T) {
	ctx := context.Background()
	matches, s := newMatches(t)

	require.NoError(t, matches.Set(ctx, "b", domain.Match{Title: "second"}))
	require.NoError(t, matches.Set(ctx, "a", domain.Match{Title: "first"}))
	require.NoError(t, s.Set(ctx, store.MatchPath("broken"), "not a match"))

	var titles []string
	var failures int
	for m, err := range matches.List(ctx) {
		if err != nil {
			failures++
			continue
		}
		titles = append(titles, m.Title)
	}
	assert.Equal(t, []string{"first", "second"}, titles)
	assert.Equal(t, 1, failures)

	found, ok, err := matches.Find(ctx, func(m domain.Match) bool { return m.Title == "second" })
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", found.ID)

	_, ok, err = matches.Find(ctx, func(m domain.Match) bool { return m.Title == "third" })
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCollection_Subscribe(t *testing.T) {
	ctx := context.Background()
	matches, _ := newMatches(t)

	pushes := make(chan []domain.Match, 8)
	unsub, err := matches.Subscribe(ctx, func(ms []domain.Match, err error) {
		assert.NoError(t, err)
		pushes <- ms
	})
	require.NoError(t, err)
	defer unsub()

	assert.Empty(t, receive(t, pushes))

	require.NoError(t, matches.Set(ctx, "m1", domain.Match{Title: "T", Active: true}))
	got := receive(t, pushes)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
}

func TestCollection_SubscribeOne(t *testing.T) {
	ctx := context.Background()
	matches, _ := newMatches(t)

	type push struct {
		m      domain.Match
		exists bool
	}
	pushes := make(chan push, 8)
	unsub, err := matches.SubscribeOne(ctx, "m1", func(m domain.Match, exists bool, err error) {
		assert.NoError(t, err)
		pushes <- push{m, exists}
	})
	require.NoError(t, err)
	defer unsub()

	assert.False(t, receive(t, pushes).exists)

	require.NoError(t, matches.Set(ctx, "m1", domain.Match{Title: "T"}))
	p := receive(t, pushes)
	assert.True(t, p.exists)
	assert.Equal(t, "m1", p.m.ID)
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for push")
		var zero T
		return zero
	}
}
