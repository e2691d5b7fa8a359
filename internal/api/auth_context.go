package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/darkscore/darkscore-server/internal/auth"
	"github.com/darkscore/darkscore-server/internal/domain"
	"github.com/darkscore/darkscore-server/internal/service"
)

// ctxKey is the type for context keys to avoid collisions.
type ctxKey string

const (
	sessionKey ctxKey = "session"
	claimsKey  ctxKey = "claims"
)

// SessionAuthenticator resolves access tokens to live client sessions.
type SessionAuthenticator interface {
	Authenticate(token string) (*service.ClientSession, *auth.AccessClaims, error)
}

// sessionMiddleware validates Bearer tokens and stores the client session in context.
// Requests without a valid token continue anonymously; handlers call requireSession.
func sessionMiddleware(sessions SessionAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			sess, claims, err := sessions.Authenticate(strings.TrimSpace(token))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, sess)
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireSession returns the authenticated client session from context.
// Returns 401 error if the request carries no valid token.
func requireSession(ctx context.Context) (*service.ClientSession, error) {
	sess, ok := ctx.Value(sessionKey).(*service.ClientSession)
	if !ok || sess == nil {
		return nil, huma.Error401Unauthorized("Authentication required")
	}
	return sess, nil
}

// requireUser returns the session together with its signed-in profile.
func requireUser(ctx context.Context) (*service.ClientSession, domain.Profile, error) {
	sess, err := requireSession(ctx)
	if err != nil {
		return nil, domain.Profile{}, err
	}
	user := sess.Social.CurrentUser()
	if user == nil {
		return nil, domain.Profile{}, huma.Error401Unauthorized("No user signed in")
	}
	return sess, *user, nil
}

// GetClaims returns the verified token claims of the request, if any.
func GetClaims(ctx context.Context) (*auth.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.AccessClaims)
	return claims, ok && claims != nil
}
