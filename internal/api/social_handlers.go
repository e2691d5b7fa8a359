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

func (s *Server) registerSocialRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getMe",
		Method:      http.MethodGet,
		Path:        "/api/v1/me",
		Summary:     "Get social state",
		Description: "Returns the signed-in user with their friends and pending invitations",
		Tags:        []string{"Social"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetMe)

	huma.Register(s.api, huma.Operation{
		OperationID: "inviteFriend",
		Method:      http.MethodPost,
		Path:        "/api/v1/friends/invitations",
		Summary:     "Invite a friend",
		Description: "Sends a friendship invitation to the user registered with the e-mail address. Unknown addresses are ignored.",
		Tags:        []string{"Social"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleInviteFriend)

	huma.Register(s.api, huma.Operation{
		OperationID: "removeFriend",
		Method:      http.MethodDelete,
		Path:        "/api/v1/friends/{id}",
		Summary:     "Remove a friend",
		Description: "Ends a friendship on both sides",
		Tags:        []string{"Social"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRemoveFriend)

	huma.Register(s.api, huma.Operation{
		OperationID: "getFriendStats",
		Method:      http.MethodGet,
		Path:        "/api/v1/friends/{id}/stats",
		Summary:     "Head-to-head statistics",
		Description: "Counts the ended matches played with a friend and who won them",
		Tags:        []string{"Social"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetFriendStats)
}

func (s *Server) registerInvitationRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "acceptInvitation",
		Method:      http.MethodPost,
		Path:        "/api/v1/invitations/{id}/accept",
		Summary:     "Accept an invitation",
		Description: "Accepts a friendship or match invitation addressed to the signed-in user",
		Tags:        []string{"Invitations"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleAcceptInvitation)

	huma.Register(s.api, huma.Operation{
		OperationID: "refuseInvitation",
		Method:      http.MethodDelete,
		Path:        "/api/v1/invitations/{id}",
		Summary:     "Refuse an invitation",
		Description: "Deletes an invitation addressed to the signed-in user",
		Tags:        []string{"Invitations"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRefuseInvitation)
}

// === DTOs ===

// FriendResponse is a friend in API responses.
type FriendResponse struct {
	ID          string `json:"id" doc:"User ID"`
	DisplayName string `json:"display_name" doc:"Display name"`
	Email       string `json:"email" doc:"E-mail address"`
	PhotoURL    string `json:"photo_url,omitempty" doc:"Photo URL"`
	Initials    string `json:"initials" doc:"Initials shown when there is no photo"`
	AvatarColor string `json:"avatar_color" doc:"Fallback avatar color (hex)"`
}

// InviterResponse identifies who sent an invitation.
type InviterResponse struct {
	ID          string `json:"id" doc:"User ID"`
	DisplayName string `json:"display_name" doc:"Display name"`
	Email       string `json:"email" doc:"E-mail address"`
	PhotoURL    string `json:"photo_url,omitempty" doc:"Photo URL"`
}

// InvitationResponse is a pending invitation in API responses.
type InvitationResponse struct {
	ID         string          `json:"id" doc:"Invitation ID"`
	Type       string          `json:"type" enum:"Friend,Match" doc:"Invitation type"`
	InvitedBy  InviterResponse `json:"invited_by" doc:"Sender"`
	SentAt     string          `json:"sent_at" doc:"When the invitation was sent (RFC 3339)"`
	MatchID    string          `json:"match_id,omitempty" doc:"Match ID for match invitations"`
	MatchTitle string          `json:"match_title,omitempty" doc:"Match title for match invitations"`
	GameTitle  string          `json:"game_title,omitempty" doc:"Game title for match invitations"`
}

// SocialStateResponse is the social state of the signed-in user.
type SocialStateResponse struct {
	User        ProfileResponse      `json:"user" doc:"Signed-in user"`
	Friends     []FriendResponse     `json:"friends" doc:"Friends"`
	Invitations []InvitationResponse `json:"invitations" doc:"Pending invitations, oldest first"`
}

// SocialStateOutput wraps the social state for Huma.
type SocialStateOutput struct {
	Body SocialStateResponse
}

// InviteFriendRequest is the request body for inviting a friend.
type InviteFriendRequest struct {
	Email string `json:"email" maxLength:"254" doc:"E-mail address of the user to invite"`
}

// InviteFriendInput wraps the invite friend request for Huma.
type InviteFriendInput struct {
	Body InviteFriendRequest
}

// InviteResponse reports whether an invitation was written.
type InviteResponse struct {
	Sent       bool                `json:"sent" doc:"False when nobody is registered with the address"`
	Invitation *InvitationResponse `json:"invitation,omitempty" doc:"The invitation, when sent"`
}

// InviteOutput wraps the invite response for Huma.
type InviteOutput struct {
	Body InviteResponse
}

// FriendPathInput identifies a friend.
type FriendPathInput struct {
	ID string `path:"id" doc:"Friend user ID"`
}

// HeadToHeadOutput wraps head-to-head statistics for Huma.
type HeadToHeadOutput struct {
	Body domain.HeadToHead
}

// InvitationPathInput identifies an invitation.
type InvitationPathInput struct {
	ID string `path:"id" doc:"Invitation ID"`
}

// === Handlers ===

func (s *Server) handleGetMe(ctx context.Context, _ *struct{}) (*SocialStateOutput, error) {
	sess, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	return &SocialStateOutput{Body: mapSocialState(sess.Social.State())}, nil
}

func (s *Server) handleInviteFriend(ctx context.Context, input *InviteFriendInput) (*InviteOutput, error) {
	sess, user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if !s.inviteRateLimiter.Allow(user.ID) {
		return nil, domainerrors.ErrRateLimited
	}

	inv, err := sess.Social.InviteFriend(ctx, input.Body.Email)
	if err != nil {
		return nil, err
	}
	return &InviteOutput{Body: mapInviteResponse(inv)}, nil
}

func (s *Server) handleRemoveFriend(ctx context.Context, input *FriendPathInput) (*MessageOutput, error) {
	sess, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := sess.Social.RemoveFriend(ctx, input.ID); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Friend removed"}}, nil
}

func (s *Server) handleGetFriendStats(ctx context.Context, input *FriendPathInput) (*HeadToHeadOutput, error) {
	sess, user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if !user.HasFriend(input.ID) {
		return nil, domainerrors.NotFoundf("friend %s not found", input.ID)
	}

	h2h, err := sess.Matches.HeadToHead(input.ID)
	if err != nil {
		return nil, err
	}
	return &HeadToHeadOutput{Body: h2h}, nil
}

func (s *Server) handleAcceptInvitation(ctx context.Context, input *InvitationPathInput) (*MessageOutput, error) {
	sess, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	inv, ok := sess.Social.Invitation(input.ID)
	if !ok {
		return nil, domainerrors.NotFoundf("invitation %s not found", input.ID)
	}

	switch inv.Type {
	case domain.InvitationFriend:
		err = sess.Social.AcceptFriendshipInvitation(ctx, inv.InvitedBy, inv.ID)
	case domain.InvitationMatch:
		err = sess.Matches.AcceptInvitation(ctx, inv.MatchID, inv.ID)
	default:
		return nil, domainerrors.Validationf("unknown invitation type %q", inv.Type)
	}
	if err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Invitation accepted"}}, nil
}

func (s *Server) handleRefuseInvitation(ctx context.Context, input *InvitationPathInput) (*MessageOutput, error) {
	sess, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := sess.Social.RemoveInvitation(ctx, input.ID); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Invitation refused"}}, nil
}

// === Mappers ===

func mapSocialState(state service.SocialState) SocialStateResponse {
	resp := SocialStateResponse{
		Friends:     make([]FriendResponse, len(state.Friends)),
		Invitations: make([]InvitationResponse, len(state.Invitations)),
	}
	if state.CurrentUser != nil {
		resp.User = mapProfile(*state.CurrentUser)
	}
	for i, f := range state.Friends {
		resp.Friends[i] = FriendResponse{
			ID:          f.ID,
			DisplayName: f.DisplayName,
			Email:       f.Email,
			PhotoURL:    f.PhotoURL,
			Initials:    color.Initials(f.DisplayName),
			AvatarColor: color.ForUser(f.ID),
		}
	}
	for i, inv := range state.Invitations {
		resp.Invitations[i] = mapInvitation(inv)
	}
	return resp
}

func mapInvitation(inv domain.Invitation) InvitationResponse {
	return InvitationResponse{
		ID:   inv.ID,
		Type: string(inv.Type),
		InvitedBy: InviterResponse{
			ID:          inv.InvitedBy.ID,
			DisplayName: inv.InvitedBy.DisplayName,
			Email:       inv.InvitedBy.Email,
			PhotoURL:    inv.InvitedBy.PhotoURL,
		},
		SentAt:     inv.SentAt.String(),
		MatchID:    inv.MatchID,
		MatchTitle: inv.MatchTitle,
		GameTitle:  inv.GameTitle,
	}
}

func mapInviteResponse(inv *domain.Invitation) InviteResponse {
	if inv == nil {
		return InviteResponse{}
	}
	resp := mapInvitation(*inv)
	return InviteResponse{Sent: true, Invitation: &resp}
}
