// Package identity verifies sign-in credentials and tracks the signed-in user of a client session.
package identity

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/darkscore/darkscore-server/internal/domain"
	domainerrors "github.com/darkscore/darkscore-server/internal/errors"
	"github.com/darkscore/darkscore-server/internal/id"
)

// Provider turns a client credential into a verified identity.
type Provider interface {
	Name() string
	Verify(ctx context.Context, credential string) (domain.Identity, error)
}

// TokenVerifier is the part of the Firebase auth client used here.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseProvider verifies Firebase ID tokens.
type FirebaseProvider struct {
	verifier TokenVerifier
}

// NewFirebaseProvider initializes a Firebase app for projectID.
// credentialsFile may be empty to use Application Default Credentials.
func NewFirebaseProvider(ctx context.Context, projectID, credentialsFile string) (*FirebaseProvider, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app init: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth init: %w", err)
	}
	return NewFirebaseProviderWithVerifier(client), nil
}

// NewFirebaseProviderWithVerifier wraps an existing verifier.
func NewFirebaseProviderWithVerifier(v TokenVerifier) *FirebaseProvider {
	return &FirebaseProvider{verifier: v}
}

// Name implements Provider.
func (p *FirebaseProvider) Name() string { return "firebase" }

// Verify implements Provider. The credential is a Firebase ID token.
func (p *FirebaseProvider) Verify(ctx context.Context, credential string) (domain.Identity, error) {
	idToken := strings.TrimSpace(credential)
	if idToken == "" {
		return domain.Identity{}, domainerrors.InvalidCredentials("id token is required")
	}

	token, err := p.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		if auth.IsIDTokenExpired(err) {
			return domain.Identity{}, domainerrors.TokenExpired("id token has expired").WithCause(err)
		}
		return domain.Identity{}, domainerrors.InvalidCredentials("invalid id token").WithCause(err)
	}

	uid := strings.TrimSpace(token.UID)
	if uid == "" {
		return domain.Identity{}, domainerrors.InvalidCredentials("id token carries no uid")
	}

	return domain.Identity{
		ID:          uid,
		DisplayName: claim(token.Claims, "name"),
		Email:       claim(token.Claims, "email"),
		PhotoURL:    claim(token.Claims, "picture"),
	}, nil
}

func claim(claims map[string]any, key string) string {
	if raw, ok := claims[key]; ok {
		if s, ok := raw.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// DevProvider signs anyone in by e-mail address. Development only.
//
// The credential is an address, optionally with a display name
// ("Ana Lima <ana@example.com>"). The user id is derived from the address,
// so the same address always signs in as the same user.
type DevProvider struct{}

// NewDevProvider creates a development provider.
func NewDevProvider() *DevProvider {
	return &DevProvider{}
}

// Name implements Provider.
func (p *DevProvider) Name() string { return "dev" }

// Verify implements Provider.
func (p *DevProvider) Verify(_ context.Context, credential string) (domain.Identity, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(credential))
	if err != nil {
		return domain.Identity{}, domainerrors.InvalidCredentials("credential must be an e-mail address")
	}

	email := domain.NormalizeEmail(addr.Address)
	name := strings.TrimSpace(addr.Name)
	if name == "" {
		name, _, _ = strings.Cut(addr.Address, "@")
	}

	return domain.Identity{
		ID:          id.FromName(email),
		DisplayName: name,
		Email:       email,
	}, nil
}
