package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkscore/darkscore-server/internal/domain"
	"github.com/darkscore/darkscore-server/internal/search"
	"github.com/darkscore/darkscore-server/internal/store"
)

func TestScanLookup_FindByEmail(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, store.PlayerPath("u1"), domain.Profile{DisplayName: "Ana", Email: "ana@example.com"}))
	require.NoError(t, s.Set(ctx, store.PlayerPath("u2"), domain.Profile{DisplayName: "Bruno", Email: "bruno@example.com"}))

	lookup := NewScanLookup(s)

	p, ok, err := lookup.FindByEmail(ctx, " Bruno@Example.com ")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u2", p.ID)

	_, ok, err = lookup.FindByEmail(ctx, "ghost@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndexLookup_FollowsStore(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	index, err := search.NewSearchIndex(search.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	follower := search.NewFollower(index, s, testLogger())
	unsub, err := follower.Start(ctx)
	require.NoError(t, err)
	t.Cleanup(unsub)
	<-follower.Ready()

	lookup := NewIndexLookup(index, s)

	anaClient := newTestClientWithLookup(t, s, lookup)
	brunoClient := newTestClientWithLookup(t, s, lookup)
	anaClient.signIn(t, "ana@example.com")
	bruno := brunoClient.signIn(t, "bruno@example.com")

	require.Eventually(t, func() bool {
		_, ok, err := lookup.FindByEmail(ctx, "bruno@example.com")
		return err == nil && ok
	}, waitFor, tick)

	inv, err := anaClient.social.InviteFriend(ctx, "bruno@example.com")
	require.NoError(t, err)
	require.NotNil(t, inv)
	brunoClient.waitSocial(t, func(st SocialState) bool { return len(st.Invitations) == 1 })

	// A profile whose e-mail changed is not returned for the old address.
	require.NoError(t, s.Merge(ctx, store.PlayerPath(bruno.ID), map[string]any{"email": "b@example.com"}))
	_, ok, err := lookup.FindByEmail(ctx, "bruno@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}
