package api

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkscore/darkscore-server/internal/domain"
)

func searchPlayers(t *testing.T, ts *testServer, header, query string) SearchPlayersResponse {
	t.Helper()
	resp := ts.api.Get("/api/v1/players/search?q="+url.QueryEscape(query), header)
	assert.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var out SearchPlayersResponse
	decode(t, resp, &out)
	return out
}

func TestGetStats_NoMatches(t *testing.T) {
	ts := setupTestServer(t)
	header, _ := ts.signIn(t, "ana@example.com")

	resp := ts.api.Get("/api/v1/stats", header)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var stats domain.UserStats
	decode(t, resp, &stats)
	assert.Equal(t, domain.UserStats{}, stats)
}

func TestSearchPlayers_ExcludesCaller(t *testing.T) {
	ts := setupTestServer(t)
	ana, _ := ts.signIn(t, "Ana Lima <ana@example.com>")
	_, bruno := ts.signIn(t, "Bruno Costa <bruno@example.com>")

	var out SearchPlayersResponse
	require.Eventually(t, func() bool {
		out = searchPlayers(t, ts, ana, "bruno")
		return len(out.Hits) == 1
	}, waitFor, tick)

	hit := out.Hits[0]
	assert.Equal(t, bruno.ID, hit.ID)
	assert.Equal(t, "Bruno Costa", hit.DisplayName)
	assert.Equal(t, "BC", hit.Initials)
	assert.False(t, hit.IsFriend)
	assert.NotContains(t, ts.api.Get("/api/v1/players/search?q=bruno", ana).Body.String(), "bruno@example.com")

	assert.Empty(t, searchPlayers(t, ts, ana, "ana").Hits)
}

func TestSearchPlayers_MarksFriends(t *testing.T) {
	ts := setupTestServer(t)
	ana, _ := ts.signIn(t, "Ana Lima <ana@example.com>")
	bruno, brunoUser := ts.signIn(t, "Bruno Costa <bruno@example.com>")

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
	require.Equal(t, http.StatusOK, ts.api.Post("/api/v1/invitations/"+invitationID+"/accept", bruno).Code)

	require.Eventually(t, func() bool {
		out := searchPlayers(t, ts, ana, "bruno")
		return len(out.Hits) == 1 && out.Hits[0].ID == brunoUser.ID && out.Hits[0].IsFriend
	}, waitFor, tick)
}

func TestSearchPlayers_Unavailable(t *testing.T) {
	ts := setupTestServer(t)
	header, _ := ts.signIn(t, "ana@example.com")
	ts.search = nil

	resp := ts.api.Get("/api/v1/players/search?q=ana", header)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Equal(t, "UNAVAILABLE", decodeError(t, resp).Code)
}

func TestSearchPlayers_LimitOutOfRange(t *testing.T) {
	ts := setupTestServer(t)
	header, _ := ts.signIn(t, "ana@example.com")

	resp := ts.api.Get("/api/v1/players/search?q=ana&limit=500", header)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}
