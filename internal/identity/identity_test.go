package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkscore/darkscore-server/internal/domain"
	domainerrors "github.com/darkscore/darkscore-server/internal/errors"
	"github.com/darkscore/darkscore-server/internal/id"
)

type fakeVerifier struct {
	token *auth.Token
	err   error
}

func (f fakeVerifier) VerifyIDToken(context.Context, string) (*auth.Token, error) {
	return f.token, f.err
}

func TestFirebaseProvider_Verify(t *testing.T) {
	p := NewFirebaseProviderWithVerifier(fakeVerifier{token: &auth.Token{
		UID: "uid-1",
		Claims: map[string]any{
			"name":    "Ana Lima",
			"email":   "ana@example.com",
			"picture": "https://example.com/a.png",
		},
	}})

	ident, err := p.Verify(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, domain.Identity{
		ID:          "uid-1",
		DisplayName: "Ana Lima",
		Email:       "ana@example.com",
		PhotoURL:    "https://example.com/a.png",
	}, ident)
}

func TestFirebaseProvider_Rejects(t *testing.T) {
	ctx := context.Background()

	_, err := NewFirebaseProviderWithVerifier(fakeVerifier{}).Verify(ctx, "  ")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	_, err = NewFirebaseProviderWithVerifier(fakeVerifier{err: errors.New("bad signature")}).Verify(ctx, "token")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	_, err = NewFirebaseProviderWithVerifier(fakeVerifier{token: &auth.Token{}}).Verify(ctx, "token")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)
}

func TestDevProvider_Verify(t *testing.T) {
	p := NewDevProvider()
	ctx := context.Background()

	ident, err := p.Verify(ctx, "Ana@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", ident.Email)
	assert.Equal(t, "Ana", ident.DisplayName)
	assert.Equal(t, id.FromName("ana@example.com"), ident.ID)

	named, err := p.Verify(ctx, "Ana Lima <ana@example.com>")
	require.NoError(t, err)
	assert.Equal(t, "Ana Lima", named.DisplayName)
	assert.Equal(t, ident.ID, named.ID, "same address, same user")

	_, err = p.Verify(ctx, "not an address")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)
}

func TestSession_SignInSignOut(t *testing.T) {
	ctx := context.Background()
	s := NewSession(NewDevProvider(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Nil(t, s.Current())

	var seen []*domain.Identity
	unsub := s.OnChange(func(_ context.Context, ident *domain.Identity) {
		seen = append(seen, ident)
	})

	ident, err := s.SignIn(ctx, "ana@example.com")
	require.NoError(t, err)
	require.NotNil(t, s.Current())
	assert.Equal(t, ident.ID, s.Current().ID)

	require.NoError(t, s.SignOut(ctx))
	require.NoError(t, s.SignOut(ctx))
	assert.Nil(t, s.Current())

	require.Len(t, seen, 2)
	assert.Equal(t, ident.ID, seen[0].ID)
	assert.Nil(t, seen[1])

	unsub()
	_, err = s.SignIn(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Len(t, seen, 2)
}

func TestSession_FailedSignInKeepsState(t *testing.T) {
	ctx := context.Background()
	s := NewSession(NewDevProvider(), nil)

	_, err := s.SignIn(ctx, "ana@example.com")
	require.NoError(t, err)

	_, err = s.SignIn(ctx, "garbage")
	require.Error(t, err)
	require.NotNil(t, s.Current())
	assert.Equal(t, "ana@example.com", s.Current().Email)
}
