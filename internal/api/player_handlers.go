package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/darkscore/darkscore-server/internal/color"
	"github.com/darkscore/darkscore-server/internal/domain"
	domainerrors "github.com/darkscore/darkscore-server/internal/errors"
	"github.com/darkscore/darkscore-server/internal/search"
)

func (s *Server) registerPlayerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getStats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Get statistics",
		Description: "Returns match statistics of the signed-in user",
		Tags:        []string{"Players"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetStats)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchPlayers",
		Method:      http.MethodGet,
		Path:        "/api/v1/players/search",
		Summary:     "Search players",
		Description: "Finds registered players by name, tolerating typos and partial words. The caller is never returned.",
		Tags:        []string{"Players"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSearchPlayers)
}

// === DTOs ===

// StatsOutput wraps user statistics for Huma.
type StatsOutput struct {
	Body domain.UserStats
}

// SearchPlayersInput contains search parameters.
type SearchPlayersInput struct {
	Query  string `query:"q" maxLength:"100" doc:"Name or e-mail to search for"`
	Limit  int    `query:"limit" minimum:"0" maximum:"50" doc:"Max results (default 20)"`
	Offset int    `query:"offset" minimum:"0" doc:"Results to skip"`
}

// PlayerHitResponse is one search result.
type PlayerHitResponse struct {
	ID          string  `json:"id" doc:"User ID"`
	DisplayName string  `json:"display_name" doc:"Display name"`
	Score       float64 `json:"score" doc:"Relevance score"`
	IsFriend    bool    `json:"is_friend" doc:"Whether the player already is a friend"`
	Initials    string  `json:"initials" doc:"Initials shown when there is no photo"`
	AvatarColor string  `json:"avatar_color" doc:"Fallback avatar color (hex)"`
}

// SearchPlayersResponse contains search results.
type SearchPlayersResponse struct {
	Query  string              `json:"query" doc:"The search query"`
	Total  uint64              `json:"total" doc:"Total matching players"`
	TookMs int64               `json:"took_ms" doc:"Search time in milliseconds"`
	Hits   []PlayerHitResponse `json:"hits" doc:"Matching players"`
}

// SearchPlayersOutput wraps search results for Huma.
type SearchPlayersOutput struct {
	Body SearchPlayersResponse
}

// === Handlers ===

func (s *Server) handleGetStats(ctx context.Context, _ *struct{}) (*StatsOutput, error) {
	sess, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := sess.Matches.Stats()
	if err != nil {
		return nil, err
	}
	return &StatsOutput{Body: stats}, nil
}

func (s *Server) handleSearchPlayers(ctx context.Context, input *SearchPlayersInput) (*SearchPlayersOutput, error) {
	_, user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if s.search == nil {
		return nil, domainerrors.Unavailable(nil, "player search is not enabled")
	}

	params := search.DefaultSearchParams()
	params.Query = input.Query
	params.Exclude = []string{user.ID}
	params.Offset = input.Offset
	if input.Limit > 0 {
		params.Limit = input.Limit
	}

	result, err := s.search.Search(ctx, params)
	if err != nil {
		return nil, domainerrors.Internal("search failed").WithCause(err)
	}

	hits := make([]PlayerHitResponse, len(result.Hits))
	for i, h := range result.Hits {
		hits[i] = PlayerHitResponse{
			ID:          h.ID,
			DisplayName: h.Name,
			Score:       h.Score,
			IsFriend:    user.HasFriend(h.ID),
			Initials:    color.Initials(h.Name),
			AvatarColor: color.ForUser(h.ID),
		}
	}

	return &SearchPlayersOutput{
		Body: SearchPlayersResponse{
			Query:  result.Query,
			Total:  result.Total,
			TookMs: result.TookMs,
			Hits:   hits,
		},
	}, nil
}
