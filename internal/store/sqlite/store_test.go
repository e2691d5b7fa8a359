package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkscore/darkscore-server/internal/store"
	"github.com/darkscore/darkscore-server/internal/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func TestStore_Suite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newTestStore(t)
	})
}

func TestOpen(t *testing.T) {
	s := newTestStore(t)
	t.Cleanup(func() { _ = s.Close() })

	var journalMode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var name string
	require.NoError(t, s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='documents'").Scan(&name))
}

func TestScan_DoesNotMatchSiblingPrefixes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Set(ctx, "matches/m1/notes/a", map[string]any{"x": 1}))
	require.NoError(t, s.Set(ctx, "matches/m10", map[string]any{"title": "other"}))
	require.NoError(t, s.Set(ctx, "matches/m1-b", map[string]any{"title": "other"}))

	docs, err := s.Scan(ctx, "matches/m1")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Contains(t, docs, "matches/m1/notes/a")
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "persist.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := Open(dbPath, logger)
	require.NoError(t, err)
	require.NoError(t, s.Merge(ctx, "players/u1", map[string]any{"displayName": "Ana"}))
	require.NoError(t, s.Close())

	s, err = Open(dbPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	snap, err := s.Get(ctx, "players/u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"displayName":"Ana"}`, string(snap.Value))
}
