package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/darkscore/darkscore-server/internal/errors"
)

func TestGetMe_EmptyState(t *testing.T) {
	ts := setupTestServer(t)
	header, user := ts.signIn(t, "Ana Lima <ana@example.com>")

	state := ts.me(t, header)
	assert.Equal(t, user.ID, state.User.ID)
	assert.Equal(t, "ana@example.com", state.User.Email)
	assert.Empty(t, state.Friends)
	assert.Empty(t, state.Invitations)
	assert.NotNil(t, state.Friends)
	assert.NotNil(t, state.Invitations)
}

func TestInviteFriend_UnknownEmail(t *testing.T) {
	ts := setupTestServer(t)
	header, _ := ts.signIn(t, "ana@example.com")

	resp := ts.api.Post("/api/v1/friends/invitations", header, map[string]any{"email": "nobody@example.com"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var out InviteResponse
	decode(t, resp, &out)
	assert.False(t, out.Sent)
	assert.Nil(t, out.Invitation)
}

func TestInviteFriend_InvalidEmail(t *testing.T) {
	ts := setupTestServer(t)
	header, _ := ts.signIn(t, "ana@example.com")

	resp := ts.api.Post("/api/v1/friends/invitations", header, map[string]any{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, string(domainerrors.CodeValidation), decodeError(t, resp).Code)
}

func TestFriendshipFlow(t *testing.T) {
	ts := setupTestServer(t)
	ana, anaUser := ts.signIn(t, "Ana Lima <ana@example.com>")
	bruno, brunoUser := ts.signIn(t, "Bruno Costa <bruno@example.com>")

	resp := ts.api.Post("/api/v1/friends/invitations", ana, map[string]any{"email": "BRUNO@example.com"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var sent InviteResponse
	decode(t, resp, &sent)
	require.True(t, sent.Sent)
	assert.Equal(t, "Friend", sent.Invitation.Type)
	assert.Equal(t, anaUser.ID, sent.Invitation.InvitedBy.ID)

	var invitationID string
	require.Eventually(t, func() bool {
		state := ts.me(t, bruno)
		if len(state.Invitations) != 1 {
			return false
		}
		invitationID = state.Invitations[0].ID
		return true
	}, waitFor, tick)

	resp = ts.api.Post("/api/v1/invitations/"+invitationID+"/accept", bruno)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	require.Eventually(t, func() bool {
		a, b := ts.me(t, ana), ts.me(t, bruno)
		return len(a.Friends) == 1 && a.Friends[0].ID == brunoUser.ID &&
			len(b.Friends) == 1 && b.Friends[0].ID == anaUser.ID &&
			len(b.Invitations) == 0
	}, waitFor, tick)

	resp = ts.api.Get("/api/v1/friends/"+brunoUser.ID+"/stats", ana)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var h2h struct {
		FriendID       string `json:"friend_id"`
		Confrontations int    `json:"confrontations"`
	}
	decode(t, resp, &h2h)
	assert.Equal(t, brunoUser.ID, h2h.FriendID)
	assert.Zero(t, h2h.Confrontations)

	resp = ts.api.Delete("/api/v1/friends/"+brunoUser.ID, ana)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	require.Eventually(t, func() bool {
		return len(ts.me(t, ana).Friends) == 0 && len(ts.me(t, bruno).Friends) == 0
	}, waitFor, tick)
}

func TestFriendStats_NotAFriend(t *testing.T) {
	ts := setupTestServer(t)
	header, _ := ts.signIn(t, "ana@example.com")

	resp := ts.api.Get("/api/v1/friends/stranger/stats", header)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, string(domainerrors.CodeNotFound), decodeError(t, resp).Code)
}

func TestAcceptInvitation_Unknown(t *testing.T) {
	ts := setupTestServer(t)
	header, _ := ts.signIn(t, "ana@example.com")

	resp := ts.api.Post("/api/v1/invitations/missing/accept", header)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRefuseInvitation(t *testing.T) {
	ts := setupTestServer(t)
	ana, _ := ts.signIn(t, "ana@example.com")
	bruno, _ := ts.signIn(t, "bruno@example.com")

	resp := ts.api.Post("/api/v1/friends/invitations", ana, map[string]any{"email": "bruno@example.com"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var invitationID string
	require.Eventually(t, func() bool {
		state := ts.me(t, bruno)
		if len(state.Invitations) != 1 {
			return false
		}
		invitationID = state.Invitations[0].ID
		return true
	}, waitFor, tick)

	resp = ts.api.Delete("/api/v1/invitations/"+invitationID, bruno)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	require.Eventually(t, func() bool {
		return len(ts.me(t, bruno).Invitations) == 0
	}, waitFor, tick)
	assert.Empty(t, ts.me(t, ana).Friends)
}
