package identity

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/darkscore/darkscore-server/internal/domain"
)

// ChangeFunc is called with the new identity after every sign-in and sign-out.
// A nil identity means nobody is signed in.
type ChangeFunc func(ctx context.Context, ident *domain.Identity)

// Session tracks who is signed in on one client session.
type Session struct {
	provider Provider
	logger   *slog.Logger

	mu       sync.Mutex
	current  *domain.Identity
	watchers map[uint64]ChangeFunc
	nextID   uint64
}

// NewSession creates a signed-out session.
func NewSession(provider Provider, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		provider: provider,
		logger:   logger,
		watchers: make(map[uint64]ChangeFunc),
	}
}

// Current returns a copy of the signed-in identity, or nil.
func (s *Session) Current() *domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	ident := *s.current
	return &ident
}

// SignIn verifies credential and makes it the current identity.
// Watchers run before SignIn returns.
func (s *Session) SignIn(ctx context.Context, credential string) (*domain.Identity, error) {
	ident, err := s.provider.Verify(ctx, credential)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = &ident
	s.mu.Unlock()

	s.logger.Info("signed in", "user_id", ident.ID, "provider", s.provider.Name())
	s.notify(ctx, &ident)

	out := ident
	return &out, nil
}

// SignOut clears the current identity. Signing out twice is harmless.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.mu.Unlock()

	if prev == nil {
		return nil
	}
	s.logger.Info("signed out", "user_id", prev.ID)
	s.notify(ctx, nil)
	return nil
}

// OnChange registers fn and returns a function that removes it.
func (s *Session) OnChange(fn ChangeFunc) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

func (s *Session) notify(ctx context.Context, ident *domain.Identity) {
	s.mu.Lock()
	watchers := make([]ChangeFunc, 0, len(s.watchers))
	for _, id := range slices.Sorted(maps.Keys(s.watchers)) {
		watchers = append(watchers, s.watchers[id])
	}
	s.mu.Unlock()

	for _, fn := range watchers {
		var arg *domain.Identity
		if ident != nil {
			cp := *ident
			arg = &cp
		}
		fn(ctx, arg)
	}
}
