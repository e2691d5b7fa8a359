package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkscore/darkscore-server/internal/domain"
	domainerrors "github.com/darkscore/darkscore-server/internal/errors"
	"github.com/darkscore/darkscore-server/internal/id"
	"github.com/darkscore/darkscore-server/internal/store"
)

func TestSocialService_SignInCreatesProfile(t *testing.T) {
	s := setupTestStore(t)
	c := newTestClient(t, s)

	user := c.signIn(t, "Ana Lima <Ana@Example.com>")
	assert.Equal(t, id.FromName("ana@example.com"), user.ID)

	stored, ok := readProfile(t, s, user.ID)
	require.True(t, ok)
	assert.Equal(t, "Ana Lima", stored.DisplayName)
	assert.Equal(t, "ana@example.com", stored.Email)
	assert.Empty(t, stored.Friends)

	snap, err := s.Get(context.Background(), store.Join(store.PlayerPath(user.ID), "friends"))
	require.NoError(t, err)
	assert.False(t, snap.Exists, "a new profile has no friends field")
}

func TestSocialService_SignInKeepsExistingProfile(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	userID := id.FromName("ana@example.com")
	require.NoError(t, s.Set(ctx, store.PlayerPath(userID), domain.Profile{
		DisplayName: "Ana From Before",
		Email:       "ana@example.com",
		Friends:     []string{"someone"},
	}))

	c := newTestClient(t, s)
	c.signIn(t, "ana@example.com")

	state := c.waitSocial(t, func(st SocialState) bool {
		return st.CurrentUser != nil && st.CurrentUser.DisplayName == "Ana From Before"
	})
	assert.Equal(t, []string{"someone"}, state.CurrentUser.Friends)

	stored, _ := readProfile(t, s, userID)
	assert.Equal(t, "Ana From Before", stored.DisplayName)
}

func TestSocialService_InvalidCredential(t *testing.T) {
	c := newTestClient(t, setupTestStore(t))

	_, err := c.social.SignIn(context.Background(), "not an address")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)
	assert.Nil(t, c.social.CurrentUser())
}

func TestSocialService_RequiresSignIn(t *testing.T) {
	c := newTestClient(t, setupTestStore(t))
	ctx := context.Background()

	_, err := c.social.InviteFriend(ctx, "bruno@example.com")
	assert.ErrorIs(t, err, domainerrors.ErrUnauthenticated)

	err = c.social.AcceptFriendshipInvitation(ctx, domain.Profile{ID: "u2"}, "inv-1")
	assert.ErrorIs(t, err, domainerrors.ErrUnauthenticated)

	assert.ErrorIs(t, c.social.RemoveInvitation(ctx, "inv-1"), domainerrors.ErrUnauthenticated)
	assert.ErrorIs(t, c.social.RemoveFriend(ctx, "u2"), domainerrors.ErrUnauthenticated)
}

func TestSocialService_InviteUnknownEmailWritesNothing(t *testing.T) {
	s := setupTestStore(t)
	c := newTestClient(t, s)
	ana := c.signIn(t, "ana@example.com")
	ctx := context.Background()

	inv, err := c.social.InviteFriend(ctx, "ghost@example.com")
	require.NoError(t, err)
	assert.Nil(t, inv)

	inv, err = c.social.InviteFriend(ctx, "ANA@example.com")
	require.NoError(t, err)
	assert.Nil(t, inv, "inviting yourself is a no-op")

	snap, err := s.Get(ctx, store.InvitationsRoot)
	require.NoError(t, err)
	assert.False(t, snap.Exists)

	_, err = c.social.InviteFriend(ctx, "not-an-email")
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, ok := readProfile(t, s, ana.ID)
	assert.True(t, ok)
}

func TestSocialService_FriendshipFlow(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	anaClient := newTestClient(t, s)
	brunoClient := newTestClient(t, s)
	ana := anaClient.signIn(t, "Ana <ana@example.com>")
	bruno := brunoClient.signIn(t, "Bruno <bruno@example.com>")

	inv, err := anaClient.social.InviteFriend(ctx, "bruno@example.com")
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, domain.InvitationFriend, inv.Type)
	assert.Equal(t, ana.ID, inv.InvitedBy.ID)
	assert.Empty(t, inv.InvitedBy.Friends)

	state := brunoClient.waitSocial(t, func(st SocialState) bool { return len(st.Invitations) == 1 })
	received := state.Invitations[0]
	assert.Equal(t, inv.ID, received.ID)
	assert.Equal(t, "Ana", received.InvitedBy.DisplayName)

	require.NoError(t, brunoClient.social.AcceptFriendshipInvitation(ctx, received.InvitedBy, received.ID))

	state = brunoClient.waitSocial(t, func(st SocialState) bool {
		return len(st.Friends) == 1 && len(st.Invitations) == 0
	})
	assert.Equal(t, ana.ID, state.Friends[0].ID)

	stored, _ := readProfile(t, s, bruno.ID)
	assert.Equal(t, []string{ana.ID}, stored.Friends)
	stored, _ = readProfile(t, s, ana.ID)
	assert.Equal(t, []string{bruno.ID}, stored.Friends)

	anaClient.waitSocial(t, func(st SocialState) bool {
		return len(st.Friends) == 1 && st.Friends[0].ID == bruno.ID
	})

	snap, err := s.Get(ctx, store.InvitationPath(bruno.ID, inv.ID))
	require.NoError(t, err)
	assert.False(t, snap.Exists)
}

func TestSocialService_AcceptFriendshipTwice(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	anaClient := newTestClient(t, s)
	brunoClient := newTestClient(t, s)
	ana := anaClient.signIn(t, "ana@example.com")
	bruno := brunoClient.signIn(t, "bruno@example.com")

	first, err := anaClient.social.InviteFriend(ctx, "bruno@example.com")
	require.NoError(t, err)
	second, err := anaClient.social.InviteFriend(ctx, "bruno@example.com")
	require.NoError(t, err)

	brunoClient.waitSocial(t, func(st SocialState) bool { return len(st.Invitations) == 2 })

	require.NoError(t, brunoClient.social.AcceptFriendshipInvitation(ctx, first.InvitedBy, first.ID))
	require.NoError(t, brunoClient.social.AcceptFriendshipInvitation(ctx, second.InvitedBy, second.ID))

	stored, _ := readProfile(t, s, bruno.ID)
	assert.Equal(t, []string{ana.ID}, stored.Friends)
	stored, _ = readProfile(t, s, ana.ID)
	assert.Equal(t, []string{bruno.ID}, stored.Friends)

	state := brunoClient.waitSocial(t, func(st SocialState) bool { return len(st.Invitations) == 0 })
	assert.Len(t, state.Friends, 1)
}

func TestSocialService_AcceptFromMissingInviter(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	c := newTestClient(t, s)
	bruno := c.signIn(t, "bruno@example.com")

	ghost := domain.Profile{ID: "ghost", DisplayName: "Ghost", Email: "ghost@example.com"}
	require.NoError(t, writeInvitation(ctx, s, bruno.ID, domain.NewFriendInvitation("inv-1", ghost)))
	c.waitSocial(t, func(st SocialState) bool { return len(st.Invitations) == 1 })

	err := c.social.AcceptFriendshipInvitation(ctx, ghost, "inv-1")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	stored, _ := readProfile(t, s, bruno.ID)
	assert.Empty(t, stored.Friends)
}

func TestSocialService_RemoveInvitation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	anaClient := newTestClient(t, s)
	brunoClient := newTestClient(t, s)
	anaClient.signIn(t, "ana@example.com")
	bruno := brunoClient.signIn(t, "bruno@example.com")

	inv, err := anaClient.social.InviteFriend(ctx, "bruno@example.com")
	require.NoError(t, err)
	brunoClient.waitSocial(t, func(st SocialState) bool { return len(st.Invitations) == 1 })

	require.NoError(t, brunoClient.social.RemoveInvitation(ctx, inv.ID))
	brunoClient.waitSocial(t, func(st SocialState) bool { return len(st.Invitations) == 0 })

	stored, _ := readProfile(t, s, bruno.ID)
	assert.Empty(t, stored.Friends, "refusing does not make friends")
}

func TestSocialService_RemoveFriend(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	anaClient := newTestClient(t, s)
	brunoClient := newTestClient(t, s)
	ana := anaClient.signIn(t, "ana@example.com")
	bruno := brunoClient.signIn(t, "bruno@example.com")

	inv, err := anaClient.social.InviteFriend(ctx, "bruno@example.com")
	require.NoError(t, err)
	brunoClient.waitSocial(t, func(st SocialState) bool { return len(st.Invitations) == 1 })
	require.NoError(t, brunoClient.social.AcceptFriendshipInvitation(ctx, inv.InvitedBy, inv.ID))
	anaClient.waitSocial(t, func(st SocialState) bool { return len(st.Friends) == 1 })

	require.NoError(t, anaClient.social.RemoveFriend(ctx, bruno.ID))
	anaClient.waitSocial(t, func(st SocialState) bool { return len(st.Friends) == 0 })

	stored, _ := readProfile(t, s, ana.ID)
	assert.Empty(t, stored.Friends)
	stored, _ = readProfile(t, s, bruno.ID)
	assert.Empty(t, stored.Friends)

	brunoClient.waitSocial(t, func(st SocialState) bool { return len(st.Friends) == 0 })

	require.NoError(t, anaClient.social.RemoveFriend(ctx, bruno.ID), "removing a non-friend is a no-op")
}

func TestSocialService_SignOutClearsState(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	c := newTestClient(t, s)
	c.signIn(t, "ana@example.com")

	var last SocialState
	states := make(chan SocialState, 16)
	unwatch := c.social.Watch(func(st SocialState) {
		select {
		case states <- st:
		default:
		}
	})
	defer unwatch()

	require.NoError(t, c.social.SignOut(ctx))

	require.Eventually(t, func() bool {
		for {
			select {
			case last = <-states:
			default:
				return last.CurrentUser == nil && len(last.Invitations) == 0
			}
		}
	}, waitFor, tick)

	assert.Nil(t, c.social.CurrentUser())
	assert.Empty(t, c.social.State().Friends)

	_, err := c.social.InviteFriend(ctx, "bruno@example.com")
	assert.ErrorIs(t, err, domainerrors.ErrUnauthenticated)
}

func TestSocialService_RemoteFailureKeepsState(t *testing.T) {
	backing := setupTestStore(t)
	fs := &failingStore{Store: backing}
	ctx := context.Background()

	anaClient := newTestClient(t, fs)
	brunoClient := newTestClient(t, fs)
	ana := anaClient.signIn(t, "Ana <ana@example.com>")
	bruno := brunoClient.signIn(t, "Bruno <bruno@example.com>")

	_, err := anaClient.social.InviteFriend(ctx, "bruno@example.com")
	require.NoError(t, err)
	state := brunoClient.waitSocial(t, func(st SocialState) bool { return len(st.Invitations) == 1 })
	received := state.Invitations[0]

	fs.down.Store(true)

	err = brunoClient.social.AcceptFriendshipInvitation(ctx, received.InvitedBy, received.ID)
	assert.ErrorIs(t, err, domainerrors.ErrUnavailable)
	assert.ErrorIs(t, err, errStoreOffline)
	assert.ErrorIs(t, brunoClient.social.RemoveInvitation(ctx, received.ID), domainerrors.ErrUnavailable)

	state = brunoClient.social.State()
	assert.Empty(t, state.Friends)
	require.Len(t, state.Invitations, 1)
	assert.Equal(t, received.ID, state.Invitations[0].ID)
	assert.Empty(t, state.CurrentUser.Friends)

	stored, _ := readProfile(t, backing, ana.ID)
	assert.Empty(t, stored.Friends)
	stored, _ = readProfile(t, backing, bruno.ID)
	assert.Empty(t, stored.Friends)
}
