package api

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkscore/darkscore-server/internal/auth"
	"github.com/darkscore/darkscore-server/internal/identity"
	"github.com/darkscore/darkscore-server/internal/search"
	"github.com/darkscore/darkscore-server/internal/service"
	"github.com/darkscore/darkscore-server/internal/sse"
	"github.com/darkscore/darkscore-server/internal/store"
	"github.com/darkscore/darkscore-server/internal/store/badgerdb"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type testServer struct {
	*Server
	api      humatest.TestAPI
	store    store.Store
	sessions *service.SessionManager
	index    *search.SearchIndex
	follower *search.Follower
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := testLogger()

	st, err := badgerdb.OpenInMemory(logger)
	require.NoError(t, err)

	key := make([]byte, 32)
	_, err = rand.Read(key)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(key, 15*time.Minute)
	require.NoError(t, err)

	index, err := search.NewSearchIndex(search.Options{Logger: logger})
	require.NoError(t, err)
	follower := search.NewFollower(index, st, logger)
	stopFollowing, err := follower.Start(context.Background())
	require.NoError(t, err)

	sessions := service.NewSessionManager(st, identity.NewDevProvider(), service.NewScanLookup(st), tokens, time.Hour, logger)
	sseManager := sse.NewManager(logger)

	server := NewServer(Deps{
		Store:      st,
		Sessions:   sessions,
		Search:     index,
		SSEManager: sseManager,
		SSEHandler: sse.NewHandler(sseManager, sessions, logger),
		Logger:     logger,
	})

	t.Cleanup(func() {
		server.Close()
		sessions.Shutdown()
		stopFollowing()
		_ = index.Close()
		_ = st.Close()
	})

	return &testServer{
		Server:   server,
		api:      humatest.Wrap(t, server.API()),
		store:    st,
		sessions: sessions,
		index:    index,
		follower: follower,
	}
}

// The state helpers below only report failures, so they are safe inside Eventually.

// signIn signs a dev user in over the API and returns its bearer header.
func (ts *testServer) signIn(t *testing.T, credential string) (header string, user ProfileResponse) {
	t.Helper()

	resp := ts.api.Post("/api/v1/auth/sign-in", map[string]any{"credential": credential})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var out AuthResponse
	decode(t, resp, &out)

	header = "Authorization: Bearer " + out.AccessToken
	require.Eventually(t, func() bool {
		me := ts.api.Get("/api/v1/me", header)
		return me.Code == http.StatusOK
	}, waitFor, tick)
	return header, out.User
}

func (ts *testServer) me(t *testing.T, header string) SocialStateResponse {
	t.Helper()
	resp := ts.api.Get("/api/v1/me", header)
	assert.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var state SocialStateResponse
	decode(t, resp, &state)
	return state
}

func (ts *testServer) matches(t *testing.T, header string) MatchesResponse {
	t.Helper()
	resp := ts.api.Get("/api/v1/matches", header)
	assert.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var state MatchesResponse
	decode(t, resp, &state)
	return state
}

func decode(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	assert.NoError(t, json.Unmarshal(resp.Body.Bytes(), dest), resp.Body.String())
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	decode(t, resp, &apiErr)
	return apiErr
}
