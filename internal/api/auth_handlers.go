package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/darkscore/darkscore-server/internal/color"
	"github.com/darkscore/darkscore-server/internal/domain"
	"github.com/darkscore/darkscore-server/internal/service"
)

func (s *Server) registerAuthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "signIn",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/sign-in",
		Summary:     "Sign in",
		Description: "Verifies an identity provider credential, opens a client session and returns its access token",
		Tags:        []string{"Authentication"},
	}, s.handleSignIn)

	huma.Register(s.api, huma.Operation{
		OperationID: "signOut",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/sign-out",
		Summary:     "Sign out",
		Description: "Signs the session out and ends it. The access token stops working.",
		Tags:        []string{"Authentication"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSignOut)
}

// === DTOs ===

// SignInRequest is the request body for sign-in.
type SignInRequest struct {
	Credential string `json:"credential" minLength:"1" maxLength:"8192" doc:"Identity provider ID token (an e-mail address with the dev provider)"`
}

// SignInInput wraps the sign-in request for Huma.
type SignInInput struct {
	Body SignInRequest
}

// ProfileResponse is a user profile in API responses.
type ProfileResponse struct {
	ID          string   `json:"id" doc:"User ID"`
	DisplayName string   `json:"display_name" doc:"Display name"`
	Email       string   `json:"email" doc:"E-mail address"`
	PhotoURL    string   `json:"photo_url,omitempty" doc:"Photo URL"`
	Initials    string   `json:"initials" doc:"Initials shown when there is no photo"`
	AvatarColor string   `json:"avatar_color" doc:"Fallback avatar color (hex)"`
	Friends     []string `json:"friends" doc:"Friend user IDs"`
}

// AuthResponse contains the access token issued at sign-in.
type AuthResponse struct {
	AccessToken string          `json:"access_token" doc:"PASETO access token"`
	TokenType   string          `json:"token_type" doc:"Token type (Bearer)"`
	ExpiresIn   int             `json:"expires_in" doc:"Seconds until the access token expires"`
	SessionID   string          `json:"session_id" doc:"Client session ID"`
	User        ProfileResponse `json:"user" doc:"Signed-in user"`
}

// AuthOutput wraps the auth response for Huma.
type AuthOutput struct {
	Body AuthResponse
}

// MessageResponse is a generic message response.
type MessageResponse struct {
	Message string `json:"message" doc:"Success message"`
}

// MessageOutput wraps the message response for Huma.
type MessageOutput struct {
	Body MessageResponse
}

// === Handlers ===

func (s *Server) handleSignIn(ctx context.Context, input *SignInInput) (*AuthOutput, error) {
	resp, _, err := s.sessions.SignIn(ctx, input.Body.Credential)
	if err != nil {
		return nil, err
	}
	return &AuthOutput{Body: mapAuthResponse(resp)}, nil
}

func (s *Server) handleSignOut(ctx context.Context, _ *struct{}) (*MessageOutput, error) {
	sess, err := requireSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.SignOut(ctx, sess.ID); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Signed out"}}, nil
}

// === Mappers ===

func mapAuthResponse(resp *service.SessionResponse) AuthResponse {
	return AuthResponse{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
		ExpiresIn:   resp.ExpiresIn,
		SessionID:   resp.SessionID,
		User:        mapProfile(resp.User),
	}
}

func mapProfile(p domain.Profile) ProfileResponse {
	friends := p.Friends
	if friends == nil {
		friends = []string{}
	}
	return ProfileResponse{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		PhotoURL:    p.PhotoURL,
		Initials:    color.Initials(p.DisplayName),
		AvatarColor: color.ForUser(p.ID),
		Friends:     friends,
	}
}
