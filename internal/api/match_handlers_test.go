package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkscore/darkscore-server/internal/domain"
	domainerrors "github.com/darkscore/darkscore-server/internal/errors"
)

func createMatch(t *testing.T, ts *testServer, header, title, game string) MatchResponse {
	t.Helper()
	resp := ts.api.Post("/api/v1/matches", header, map[string]any{"title": title, "game_title": game})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var m MatchResponse
	decode(t, resp, &m)
	return m
}

func postMatch(t *testing.T, ts *testServer, header, path string) MatchResponse {
	t.Helper()
	resp := ts.api.Post(path, header)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var m MatchResponse
	decode(t, resp, &m)
	return m
}

func TestCreateMatch(t *testing.T) {
	ts := setupTestServer(t)
	header, user := ts.signIn(t, "Ana Lima <ana@example.com>")

	m := createMatch(t, ts, header, "Friday night", "Catan")
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "Friday night", m.Title)
	assert.Equal(t, "Catan", m.GameTitle)
	assert.Equal(t, user.ID, m.CreatedBy)
	assert.True(t, m.Active)
	assert.Empty(t, m.FinishedAt)
	assert.Equal(t, "00:00:00", m.Duration)
	require.Len(t, m.Players, 1)
	assert.Equal(t, user.ID, m.Players[0].ID)
	assert.Equal(t, "Ana Lima", m.Players[0].Name)
	assert.Equal(t, "AL", m.Players[0].Initials)
	assert.Zero(t, m.Players[0].Score)

	require.Eventually(t, func() bool {
		state := ts.matches(t, header)
		return len(state.Matches) == 1 && state.Current != nil && state.Current.ID == m.ID
	}, waitFor, tick)
}

func TestCreateMatch_Validation(t *testing.T) {
	ts := setupTestServer(t)
	header, _ := ts.signIn(t, "ana@example.com")

	tests := []struct {
		name string
		body map[string]any
	}{
		{"blank title", map[string]any{"title": "   ", "game_title": "Catan"}},
		{"empty game", map[string]any{"title": "Friday", "game_title": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.api.Post("/api/v1/matches", header, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
			assert.Equal(t, string(domainerrors.CodeValidation), decodeError(t, resp).Code)
		})
	}

	assert.Empty(t, ts.matches(t, header).Matches)
}

func TestScores_SaturateAtZero(t *testing.T) {
	ts := setupTestServer(t)
	header, user := ts.signIn(t, "ana@example.com")
	m := createMatch(t, ts, header, "Friday", "Catan")
	base := "/api/v1/matches/" + m.ID + "/players/" + user.ID

	m = postMatch(t, ts, header, base+"/increment")
	m = postMatch(t, ts, header, base+"/increment")
	assert.Equal(t, 2, m.Players[0].Score)

	for range 3 {
		m = postMatch(t, ts, header, base+"/decrement")
	}
	assert.Zero(t, m.Players[0].Score)

	m = postMatch(t, ts, header, base+"/increment")
	m = postMatch(t, ts, header, "/api/v1/matches/"+m.ID+"/reset")
	assert.Zero(t, m.Players[0].Score)
}

func TestMatchRoutes_UnknownMatch(t *testing.T) {
	ts := setupTestServer(t)
	header, user := ts.signIn(t, "ana@example.com")

	paths := []string{
		"/api/v1/matches/missing/players/" + user.ID + "/increment",
		"/api/v1/matches/missing/reset",
		"/api/v1/matches/missing/end",
	}
	for _, p := range paths {
		resp := ts.api.Post(p, header)
		assert.Equal(t, http.StatusNotFound, resp.Code, p)
	}

	assert.Equal(t, http.StatusNotFound, ts.api.Get("/api/v1/matches/missing", header).Code)
	assert.Equal(t, http.StatusNotFound, ts.api.Delete("/api/v1/matches/missing", header).Code)
}

func TestGetMatch_Standings(t *testing.T) {
	ts := setupTestServer(t)
	header, user := ts.signIn(t, "ana@example.com")
	m := createMatch(t, ts, header, "Friday", "Catan")
	postMatch(t, ts, header, "/api/v1/matches/"+m.ID+"/players/"+user.ID+"/increment")

	resp := ts.api.Get("/api/v1/matches/"+m.ID, header)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var detail MatchDetailResponse
	decode(t, resp, &detail)
	assert.Equal(t, m.ID, detail.ID)
	require.Len(t, detail.Standings, 1)
	assert.Equal(t, 1, detail.Standings[0].Score)
	assert.Equal(t, user.ID, detail.LeaderID)
	assert.Empty(t, detail.WinnerID, "active matches have no winner")
}

func TestEndMatch_OneWay(t *testing.T) {
	ts := setupTestServer(t)
	header, user := ts.signIn(t, "ana@example.com")
	m := createMatch(t, ts, header, "Friday", "Catan")
	postMatch(t, ts, header, "/api/v1/matches/"+m.ID+"/players/"+user.ID+"/increment")

	ended := postMatch(t, ts, header, "/api/v1/matches/"+m.ID+"/end")
	assert.False(t, ended.Active)
	assert.NotEmpty(t, ended.FinishedAt)
	assert.Equal(t, user.ID, ended.WinnerID)

	require.Eventually(t, func() bool {
		state := ts.matches(t, header)
		return len(state.Matches) == 0 && len(state.History) == 1 && state.Current == nil
	}, waitFor, tick)

	again := postMatch(t, ts, header, "/api/v1/matches/"+m.ID+"/end")
	assert.False(t, again.Active)
	assert.Equal(t, ended.FinishedAt, again.FinishedAt)

	frozen := []string{
		"/api/v1/matches/" + m.ID + "/players/" + user.ID + "/increment",
		"/api/v1/matches/" + m.ID + "/players/" + user.ID + "/decrement",
		"/api/v1/matches/" + m.ID + "/reset",
	}
	for _, p := range frozen {
		resp := ts.api.Post(p, header)
		assert.Equal(t, http.StatusNotFound, resp.Code, p)
	}
	resp := ts.api.Delete("/api/v1/matches/"+m.ID+"/players/"+user.ID, header)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = ts.api.Get("/api/v1/matches/"+m.ID, header)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var stored MatchResponse
	decode(t, resp, &stored)
	assert.Equal(t, user.ID, stored.WinnerID)

	resp = ts.api.Get("/api/v1/stats", header)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var stats domain.UserStats
	decode(t, resp, &stats)
	assert.Equal(t, 1, stats.Played)
	assert.Equal(t, 1, stats.Wins)
	assert.Zero(t, stats.Active)
}

func TestDeleteMatch(t *testing.T) {
	ts := setupTestServer(t)
	header, _ := ts.signIn(t, "ana@example.com")
	m := createMatch(t, ts, header, "Friday", "Catan")

	resp := ts.api.Delete("/api/v1/matches/"+m.ID, header)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	require.Eventually(t, func() bool {
		state := ts.matches(t, header)
		return len(state.Matches) == 0 && state.Current == nil
	}, waitFor, tick)
	assert.Equal(t, http.StatusNotFound, ts.api.Get("/api/v1/matches/"+m.ID, header).Code)
}

func TestMatchInvitationFlow(t *testing.T) {
	ts := setupTestServer(t)
	ana, anaUser := ts.signIn(t, "Ana Lima <ana@example.com>")
	bruno, brunoUser := ts.signIn(t, "Bruno Costa <bruno@example.com>")
	m := createMatch(t, ts, ana, "Friday", "Catan")

	resp := ts.api.Post("/api/v1/matches/"+m.ID+"/invitations", ana, map[string]any{"email": "bruno@example.com"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var sent InviteResponse
	decode(t, resp, &sent)
	require.True(t, sent.Sent)
	assert.Equal(t, "Match", sent.Invitation.Type)
	assert.Equal(t, m.ID, sent.Invitation.MatchID)
	assert.Equal(t, "Catan", sent.Invitation.GameTitle)

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
		a := ts.matches(t, ana)
		b := ts.matches(t, bruno)
		return len(a.Matches) == 1 && len(a.Matches[0].Players) == 2 &&
			len(b.Matches) == 1 && b.Matches[0].ID == m.ID &&
			len(ts.me(t, bruno).Invitations) == 0
	}, waitFor, tick)

	// Inviting a current player is ignored.
	resp = ts.api.Post("/api/v1/matches/"+m.ID+"/invitations", ana, map[string]any{"email": "bruno@example.com"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	decode(t, resp, &sent)
	assert.False(t, sent.Sent)

	updated := postMatch(t, ts, bruno, "/api/v1/matches/"+m.ID+"/players/"+anaUser.ID+"/increment")
	require.Len(t, updated.Players, 2)

	resp = ts.api.Delete("/api/v1/matches/"+m.ID+"/players/"+brunoUser.ID, ana)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	require.Eventually(t, func() bool {
		return len(ts.matches(t, bruno).Matches) == 0
	}, waitFor, tick)
}
