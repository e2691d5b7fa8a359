package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/darkscore/darkscore-server/internal/domain"
	"github.com/darkscore/darkscore-server/internal/identity"
	"github.com/darkscore/darkscore-server/internal/store"
	"github.com/darkscore/darkscore-server/internal/store/badgerdb"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func setupTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := badgerdb.OpenInMemory(testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// testClient is one signed-in app instance.
type testClient struct {
	ident   *identity.Session
	social  *SocialService
	matches *MatchService
}

func newTestClient(t *testing.T, s store.Store) *testClient {
	t.Helper()
	return newTestClientWithLookup(t, s, NewScanLookup(s))
}

func newTestClientWithLookup(t *testing.T, s store.Store, lookup ProfileLookup) *testClient {
	t.Helper()
	ident := identity.NewSession(identity.NewDevProvider(), testLogger())
	social := NewSocialService(s, ident, lookup, testLogger())
	matches := NewMatchService(s, ident, social, lookup, testLogger())
	t.Cleanup(func() {
		matches.Close()
		social.Close()
	})
	return &testClient{ident: ident, social: social, matches: matches}
}

// signIn signs c in and waits until the stored profile has been picked up.
func (c *testClient) signIn(t *testing.T, credential string) domain.Profile {
	t.Helper()
	p, err := c.social.SignIn(context.Background(), credential)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		u := c.social.CurrentUser()
		return u != nil && u.ID == p.ID
	}, waitFor, tick)
	return *p
}

func (c *testClient) waitSocial(t *testing.T, cond func(SocialState) bool) SocialState {
	t.Helper()
	var state SocialState
	require.Eventually(t, func() bool {
		state = c.social.State()
		return cond(state)
	}, waitFor, tick)
	return state
}

func (c *testClient) waitMatches(t *testing.T, cond func(MatchState) bool) MatchState {
	t.Helper()
	var state MatchState
	require.Eventually(t, func() bool {
		state = c.matches.State()
		return cond(state)
	}, waitFor, tick)
	return state
}

func readProfile(t *testing.T, s store.Store, userID string) (domain.Profile, bool) {
	t.Helper()
	p, ok, err := newPlayers(s).Get(context.Background(), userID)
	require.NoError(t, err)
	return p, ok
}

func readMatch(t *testing.T, s store.Store, matchID string) domain.Match {
	t.Helper()
	var m domain.Match
	snap, err := s.Get(context.Background(), store.MatchPath(matchID))
	require.NoError(t, err)
	require.True(t, snap.Exists, "match %s missing", matchID)
	require.NoError(t, snap.Decode(&m))
	return m
}

func scoreOf(m domain.Match, playerID string) int {
	p, _ := m.Player(playerID)
	return p.Score
}

// gatedStore holds back subscription pushes while paused and replays them on resume.
type gatedStore struct {
	store.Store

	mu      sync.Mutex
	paused  bool
	pending []func()
}

func (g *gatedStore) Subscribe(ctx context.Context, path string, fn store.Listener) (store.Unsubscribe, error) {
	return g.Store.Subscribe(ctx, path, func(snap store.Snapshot) {
		g.mu.Lock()
		if g.paused {
			g.pending = append(g.pending, func() { fn(snap) })
			g.mu.Unlock()
			return
		}
		g.mu.Unlock()
		fn(snap)
	})
}

func (g *gatedStore) pause() {
	g.mu.Lock()
	g.paused = true
	g.mu.Unlock()
}

func (g *gatedStore) resume() {
	g.mu.Lock()
	g.paused = false
	pending := g.pending
	g.pending = nil
	g.mu.Unlock()

	for _, deliver := range pending {
		deliver()
	}
}

var errStoreOffline = errors.New("store offline")

// failingStore rejects every write while down and every point read while
// readsDown. Subscriptions keep working.
type failingStore struct {
	store.Store

	down      atomic.Bool
	readsDown atomic.Bool
}

func (f *failingStore) Get(ctx context.Context, path string) (store.Snapshot, error) {
	if f.readsDown.Load() {
		return store.Snapshot{}, errStoreOffline
	}
	return f.Store.Get(ctx, path)
}

func (f *failingStore) Set(ctx context.Context, path string, value any) error {
	if f.down.Load() {
		return errStoreOffline
	}
	return f.Store.Set(ctx, path, value)
}

func (f *failingStore) Merge(ctx context.Context, path string, fields map[string]any) error {
	if f.down.Load() {
		return errStoreOffline
	}
	return f.Store.Merge(ctx, path, fields)
}

func (f *failingStore) Delete(ctx context.Context, path string) error {
	if f.down.Load() {
		return errStoreOffline
	}
	return f.Store.Delete(ctx, path)
}
