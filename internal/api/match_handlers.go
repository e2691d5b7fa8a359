package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/darkscore/darkscore-server/internal/color"
	"github.com/darkscore/darkscore-server/internal/domain"
	domainerrors "github.com/darkscore/darkscore-server/internal/errors"
	"github.com/darkscore/darkscore-server/internal/service"
)

func (s *Server) registerMatchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listMatches",
		Method:      http.MethodGet,
		Path:        "/api/v1/matches",
		Summary:     "List matches",
		Description: "Returns the active matches, the history of ended matches and the current selection",
		Tags:        []string{"Matches"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListMatches)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createMatch",
		Method:        http.MethodPost,
		Path:          "/api/v1/matches",
		Summary:       "Create match",
		Description:   "Starts a match with the signed-in user as its only player and selects it",
		Tags:          []string{"Matches"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleCreateMatch)

	huma.Register(s.api, huma.Operation{
		OperationID: "getMatch",
		Method:      http.MethodGet,
		Path:        "/api/v1/matches/{id}",
		Summary:     "Get match",
		Description: "Selects a match and returns it with its standings",
		Tags:        []string{"Matches"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetMatch)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteMatch",
		Method:      http.MethodDelete,
		Path:        "/api/v1/matches/{id}",
		Summary:     "Delete match",
		Tags:        []string{"Matches"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteMatch)

	huma.Register(s.api, huma.Operation{
		OperationID: "invitePlayer",
		Method:      http.MethodPost,
		Path:        "/api/v1/matches/{id}/invitations",
		Summary:     "Invite a player",
		Description: "Invites the user registered with the e-mail address to the match. Unknown addresses and current players are ignored.",
		Tags:        []string{"Matches"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleInvitePlayer)

	huma.Register(s.api, huma.Operation{
		OperationID: "removePlayer",
		Method:      http.MethodDelete,
		Path:        "/api/v1/matches/{id}/players/{playerId}",
		Summary:     "Remove a player",
		Tags:        []string{"Matches"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRemovePlayer)

	huma.Register(s.api, huma.Operation{
		OperationID: "incrementScore",
		Method:      http.MethodPost,
		Path:        "/api/v1/matches/{id}/players/{playerId}/increment",
		Summary:     "Add a point",
		Tags:        []string{"Matches"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleIncrementScore)

	huma.Register(s.api, huma.Operation{
		OperationID: "decrementScore",
		Method:      http.MethodPost,
		Path:        "/api/v1/matches/{id}/players/{playerId}/decrement",
		Summary:     "Take a point",
		Description: "Scores never drop below zero",
		Tags:        []string{"Matches"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDecrementScore)

	huma.Register(s.api, huma.Operation{
		OperationID: "resetScores",
		Method:      http.MethodPost,
		Path:        "/api/v1/matches/{id}/reset",
		Summary:     "Reset scores",
		Tags:        []string{"Matches"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleResetScores)

	huma.Register(s.api, huma.Operation{
		OperationID: "endMatch",
		Method:      http.MethodPost,
		Path:        "/api/v1/matches/{id}/end",
		Summary:     "End match",
		Description: "Finishes an active match. Ended matches cannot be reopened.",
		Tags:        []string{"Matches"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleEndMatch)
}

// === DTOs ===

// PlayerResponse is one player of a match.
type PlayerResponse struct {
	ID          string `json:"id" doc:"User ID"`
	Name        string `json:"name" doc:"Display name"`
	PhotoURL    string `json:"photo_url,omitempty" doc:"Photo URL"`
	Score       int    `json:"score" doc:"Current score"`
	Initials    string `json:"initials" doc:"Initials shown when there is no photo"`
	AvatarColor string `json:"avatar_color" doc:"Fallback avatar color (hex)"`
}

// MatchResponse is a match in API responses.
type MatchResponse struct {
	ID         string           `json:"id" doc:"Match ID"`
	Title      string           `json:"title" doc:"Match title"`
	GameTitle  string           `json:"game_title" doc:"Game being played"`
	CreatedBy  string           `json:"created_by" doc:"User ID of the creator"`
	CreatedAt  string           `json:"created_at" doc:"Creation time (RFC 3339)"`
	FinishedAt string           `json:"finished_at,omitempty" doc:"Finish time (RFC 3339), empty while active"`
	Active     bool             `json:"active" doc:"False once the match has ended"`
	Duration   string           `json:"duration" doc:"Time between creation and finish (HH:MM:SS)"`
	Players    []PlayerResponse `json:"players" doc:"Players in join order"`
	WinnerID   string           `json:"winner_id,omitempty" doc:"Highest scorer of an ended match, if anyone scored"`
}

// MatchOutput wraps a match for Huma.
type MatchOutput struct {
	Body MatchResponse
}

// MatchDetailResponse is a selected match with its standings.
type MatchDetailResponse struct {
	MatchResponse
	Standings []PlayerResponse `json:"standings" doc:"Players ordered by score, highest first"`
	LeaderID  string           `json:"leader_id,omitempty" doc:"Current highest scorer"`
}

// MatchDetailOutput wraps a match detail for Huma.
type MatchDetailOutput struct {
	Body MatchDetailResponse
}

// MatchesResponse is the match state of the signed-in user.
type MatchesResponse struct {
	Matches []MatchResponse `json:"matches" doc:"Active matches, oldest first"`
	History []MatchResponse `json:"history" doc:"Ended matches, most recently finished first"`
	Current *MatchResponse  `json:"current,omitempty" doc:"Selected match"`
}

// MatchesOutput wraps the match state for Huma.
type MatchesOutput struct {
	Body MatchesResponse
}

// CreateMatchRequest is the request body for creating a match.
type CreateMatchRequest struct {
	Title     string `json:"title" maxLength:"100" doc:"Match title"`
	GameTitle string `json:"game_title" maxLength:"100" doc:"Game being played"`
}

// CreateMatchInput wraps the create match request for Huma.
type CreateMatchInput struct {
	Body CreateMatchRequest
}

// MatchPathInput identifies a match.
type MatchPathInput struct {
	ID string `path:"id" doc:"Match ID"`
}

// MatchPlayerPathInput identifies a player of a match.
type MatchPlayerPathInput struct {
	ID       string `path:"id" doc:"Match ID"`
	PlayerID string `path:"playerId" doc:"Player user ID"`
}

// InvitePlayerInput wraps the invite player request for Huma.
type InvitePlayerInput struct {
	ID   string `path:"id" doc:"Match ID"`
	Body InviteFriendRequest
}

// === Handlers ===

func (s *Server) handleListMatches(ctx context.Context, _ *struct{}) (*MatchesOutput, error) {
	sess, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	return &MatchesOutput{Body: mapMatchState(sess.Matches.State())}, nil
}

func (s *Server) handleCreateMatch(ctx context.Context, input *CreateMatchInput) (*MatchOutput, error) {
	sess, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	matchID, err := sess.Matches.CreateMatch(ctx, input.Body.Title, input.Body.GameTitle)
	if err != nil {
		return nil, err
	}
	return s.matchOutput(ctx, sess, matchID)
}

func (s *Server) handleGetMatch(ctx context.Context, input *MatchPathInput) (*MatchDetailOutput, error) {
	sess, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	m, err := sess.Matches.SelectMatch(input.ID)
	if err != nil {
		return nil, err
	}

	detail := MatchDetailResponse{
		MatchResponse: mapMatch(m),
		Standings:     mapPlayers(m.Standings()),
	}
	if leader, ok := m.Leader(); ok {
		detail.LeaderID = leader.ID
	}
	return &MatchDetailOutput{Body: detail}, nil
}

func (s *Server) handleDeleteMatch(ctx context.Context, input *MatchPathInput) (*MessageOutput, error) {
	sess, err := requireMatch(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if err := sess.Matches.DeleteMatch(ctx, input.ID); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Match deleted"}}, nil
}

func (s *Server) handleInvitePlayer(ctx context.Context, input *InvitePlayerInput) (*InviteOutput, error) {
	sess, err := requireActiveMatch(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	user := sess.Social.CurrentUser()
	if user != nil && !s.inviteRateLimiter.Allow(user.ID) {
		return nil, domainerrors.ErrRateLimited
	}

	inv, err := sess.Matches.InvitePlayer(ctx, input.ID, input.Body.Email)
	if err != nil {
		return nil, err
	}
	return &InviteOutput{Body: mapInviteResponse(inv)}, nil
}

func (s *Server) handleRemovePlayer(ctx context.Context, input *MatchPlayerPathInput) (*MatchOutput, error) {
	sess, err := requireActiveMatch(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if err := sess.Matches.RemovePlayer(ctx, input.ID, input.PlayerID); err != nil {
		return nil, err
	}
	return s.matchOutput(ctx, sess, input.ID)
}

func (s *Server) handleIncrementScore(ctx context.Context, input *MatchPlayerPathInput) (*MatchOutput, error) {
	sess, err := requireActiveMatch(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if err := sess.Matches.IncreaseScore(ctx, input.ID, input.PlayerID); err != nil {
		return nil, err
	}
	return s.matchOutput(ctx, sess, input.ID)
}

func (s *Server) handleDecrementScore(ctx context.Context, input *MatchPlayerPathInput) (*MatchOutput, error) {
	sess, err := requireActiveMatch(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if err := sess.Matches.DecreaseScore(ctx, input.ID, input.PlayerID); err != nil {
		return nil, err
	}
	return s.matchOutput(ctx, sess, input.ID)
}

func (s *Server) handleResetScores(ctx context.Context, input *MatchPathInput) (*MatchOutput, error) {
	sess, err := requireActiveMatch(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if err := sess.Matches.ResetScores(ctx, input.ID); err != nil {
		return nil, err
	}
	return s.matchOutput(ctx, sess, input.ID)
}

func (s *Server) handleEndMatch(ctx context.Context, input *MatchPathInput) (*MatchOutput, error) {
	sess, err := requireMatch(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if err := sess.Matches.EndMatch(ctx, input.ID); err != nil {
		return nil, err
	}
	return s.matchOutput(ctx, sess, input.ID)
}

// requireMatch returns the signed-in session when it knows matchID.
func requireMatch(ctx context.Context, matchID string) (*service.ClientSession, error) {
	sess, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := sess.Matches.Match(matchID); !ok {
		return nil, domainerrors.NotFoundf("match %s not found", matchID)
	}
	return sess, nil
}

// requireActiveMatch is requireMatch for routes that change players or scores.
// Ended matches are frozen and reported as missing.
func requireActiveMatch(ctx context.Context, matchID string) (*service.ClientSession, error) {
	sess, err := requireMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m, _ := sess.Matches.Match(matchID); !m.Active {
		return nil, domainerrors.NotFoundf("match %s has ended", matchID)
	}
	return sess, nil
}

// matchOutput returns the session's copy of a match, falling back to the stored
// record when a subscription push has already dropped it from local state.
func (s *Server) matchOutput(ctx context.Context, sess *service.ClientSession, matchID string) (*MatchOutput, error) {
	if m, ok := sess.Matches.Match(matchID); ok {
		return &MatchOutput{Body: mapMatch(m)}, nil
	}

	m, ok, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return nil, domainerrors.Unavailable(err, "failed to read match")
	}
	if !ok {
		return nil, domainerrors.NotFoundf("match %s not found", matchID)
	}
	return &MatchOutput{Body: mapMatch(m)}, nil
}

// === Mappers ===

func mapMatchState(state service.MatchState) MatchesResponse {
	resp := MatchesResponse{
		Matches: make([]MatchResponse, len(state.Matches)),
		History: make([]MatchResponse, len(state.History)),
	}
	for i, m := range state.Matches {
		resp.Matches[i] = mapMatch(m)
	}
	for i, m := range state.History {
		resp.History[i] = mapMatch(m)
	}
	if state.Current != nil {
		current := mapMatch(*state.Current)
		resp.Current = &current
	}
	return resp
}

func mapMatch(m domain.Match) MatchResponse {
	resp := MatchResponse{
		ID:         m.ID,
		Title:      m.Title,
		GameTitle:  m.GameTitle,
		CreatedBy:  m.CreatedBy,
		CreatedAt:  m.CreatedAt.String(),
		FinishedAt: m.FinishedAt.String(),
		Active:     m.Active,
		Duration:   domain.FormatDuration(m.Duration()),
		Players:    mapPlayers(m.Players),
	}
	if !m.Active {
		if winner, ok := m.Winner(); ok {
			resp.WinnerID = winner.ID
		}
	}
	return resp
}

func mapPlayers(players []domain.Player) []PlayerResponse {
	out := make([]PlayerResponse, len(players))
	for i, p := range players {
		out[i] = PlayerResponse{
			ID:          p.ID,
			Name:        p.Name,
			PhotoURL:    p.PhotoURL,
			Score:       p.Score,
			Initials:    color.Initials(p.Name),
			AvatarColor: color.ForUser(p.ID),
		}
	}
	return out
}
