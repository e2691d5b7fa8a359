package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/darkscore/darkscore-server/internal/auth"
	"github.com/darkscore/darkscore-server/internal/domain"
	domainerrors "github.com/darkscore/darkscore-server/internal/errors"
	"github.com/darkscore/darkscore-server/internal/id"
	"github.com/darkscore/darkscore-server/internal/identity"
	"github.com/darkscore/darkscore-server/internal/store"
)

// ClientSession is one API client: an identity session with its own social and
// match containers.
type ClientSession struct {
	ID       string
	Identity *identity.Session
	Social   *SocialService
	Matches  *MatchService

	mu       sync.Mutex
	lastSeen time.Time
}

// LastSeen returns when the session was last used.
func (c *ClientSession) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

func (c *ClientSession) touch(now time.Time) {
	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()
}

func (c *ClientSession) close() {
	c.Matches.Close()
	c.Social.Close()
}

// SessionResponse contains the access token issued at sign-in.
type SessionResponse struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	ExpiresIn   int            `json:"expires_in"` // Seconds until access token expires
	SessionID   string         `json:"session_id"`
	User        domain.Profile `json:"user"`
}

// SessionManager owns the live client sessions.
type SessionManager struct {
	store       store.Store
	provider    identity.Provider
	lookup      ProfileLookup
	tokens      *auth.TokenService
	idleTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*ClientSession
}

// NewSessionManager creates an empty session manager.
func NewSessionManager(
	s store.Store,
	provider identity.Provider,
	lookup ProfileLookup,
	tokens *auth.TokenService,
	idleTimeout time.Duration,
	logger *slog.Logger,
) *SessionManager {
	return &SessionManager{
		store:       s,
		provider:    provider,
		lookup:      lookup,
		tokens:      tokens,
		idleTimeout: idleTimeout,
		logger:      logger,
		now:         time.Now,
		sessions:    make(map[string]*ClientSession),
	}
}

// Create starts a signed-out client session.
func (m *SessionManager) Create() (*ClientSession, error) {
	sessionID, err := id.Generate(id.PrefixSession)
	if err != nil {
		return nil, domainerrors.Internal("failed to generate session id").WithCause(err)
	}

	logger := m.logger.With("session_id", sessionID)
	ident := identity.NewSession(m.provider, logger)
	social := NewSocialService(m.store, ident, m.lookup, logger)
	sess := &ClientSession{
		ID:       sessionID,
		Identity: ident,
		Social:   social,
		Matches:  NewMatchService(m.store, ident, social, m.lookup, logger),
		lastSeen: m.now(),
	}

	m.mu.Lock()
	m.sessions[sessionID] = sess
	m.mu.Unlock()

	return sess, nil
}

// Get returns a live session and marks it as used.
func (m *SessionManager) Get(sessionID string) (*ClientSession, bool) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if ok {
		sess.touch(m.now())
	}
	return sess, ok
}

// SignIn creates a session, signs it in with credential and issues its access token.
func (m *SessionManager) SignIn(ctx context.Context, credential string) (*SessionResponse, *ClientSession, error) {
	sess, err := m.Create()
	if err != nil {
		return nil, nil, err
	}

	user, err := sess.Social.SignIn(ctx, credential)
	if err != nil {
		m.Close(sess.ID)
		return nil, nil, err
	}

	token, err := m.tokens.GenerateAccessToken(auth.Subject{SessionID: sess.ID, UserID: user.ID, Email: user.Email})
	if err != nil {
		m.Close(sess.ID)
		return nil, nil, domainerrors.Internal("failed to issue access token").WithCause(err)
	}

	m.logger.Info("session signed in", "session_id", sess.ID, "user_id", user.ID)
	return &SessionResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(m.tokens.AccessTokenDuration().Seconds()),
		SessionID:   sess.ID,
		User:        *user,
	}, sess, nil
}

// Authenticate resolves an access token to its live session.
func (m *SessionManager) Authenticate(token string) (*ClientSession, *auth.AccessClaims, error) {
	claims, err := m.tokens.VerifyAccessToken(token)
	if err != nil {
		return nil, nil, domainerrors.TokenExpired("invalid or expired access token").WithCause(err)
	}

	sess, ok := m.Get(claims.SessionID)
	if !ok {
		return nil, nil, domainerrors.Unauthenticated("session ended")
	}
	ident := sess.Identity.Current()
	if ident == nil || ident.ID != claims.UserID {
		return nil, nil, domainerrors.Unauthenticated("session signed out")
	}
	return sess, claims, nil
}

// SignOut signs a session out and ends it.
func (m *SessionManager) SignOut(ctx context.Context, sessionID string) error {
	sess, ok := m.Get(sessionID)
	if !ok {
		return nil
	}
	if err := sess.Social.SignOut(ctx); err != nil {
		return err
	}
	m.Close(sessionID)
	return nil
}

// Close ends a session and drops its subscriptions.
func (m *SessionManager) Close(sessionID string) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if ok {
		sess.close()
		m.logger.Debug("session closed", "session_id", sessionID)
	}
}

// CleanupIdle ends every session unused since before now minus the idle timeout.
// It returns how many sessions were ended.
func (m *SessionManager) CleanupIdle(now time.Time) int {
	cutoff := now.Add(-m.idleTimeout)

	m.mu.Lock()
	var idle []*ClientSession
	for sessionID, sess := range m.sessions {
		if sess.LastSeen().Before(cutoff) {
			idle = append(idle, sess)
			delete(m.sessions, sessionID)
		}
	}
	m.mu.Unlock()

	for _, sess := range idle {
		sess.close()
	}
	if len(idle) > 0 {
		m.logger.Info("Closed idle sessions", "count", len(idle))
	}
	return len(idle)
}

// RunCleanup calls CleanupIdle every interval until ctx is done.
func (m *SessionManager) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.CleanupIdle(now)
		}
	}
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown ends every session.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*ClientSession)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}
