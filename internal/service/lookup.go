package service

import (
	"context"

	"github.com/darkscore/darkscore-server/internal/domain"
	domainerrors "github.com/darkscore/darkscore-server/internal/errors"
	"github.com/darkscore/darkscore-server/internal/search"
	"github.com/darkscore/darkscore-server/internal/store"
)

// ProfileLookup resolves an e-mail address to a stored profile.
type ProfileLookup interface {
	FindByEmail(ctx context.Context, email string) (domain.Profile, bool, error)
}

func newPlayers(s store.Store) *store.Collection[domain.Profile] {
	return store.NewCollection(s, store.PlayersPath, func(p *domain.Profile, id string) { p.ID = id })
}

// ScanLookup reads the whole players collection on every lookup.
type ScanLookup struct {
	players *store.Collection[domain.Profile]
}

// NewScanLookup creates a lookup that scans s.
func NewScanLookup(s store.Store) *ScanLookup {
	return &ScanLookup{players: newPlayers(s)}
}

// FindByEmail implements ProfileLookup.
func (l *ScanLookup) FindByEmail(ctx context.Context, email string) (domain.Profile, bool, error) {
	p, ok, err := l.players.Find(ctx, func(p domain.Profile) bool { return p.MatchesEmail(email) })
	if err != nil {
		return domain.Profile{}, false, domainerrors.Unavailable(err, "failed to look up profile")
	}
	return p, ok, nil
}

// IndexLookup resolves e-mails through the player index and reads the profile itself
// from the store, so a stale index entry never yields a stale profile.
type IndexLookup struct {
	index   *search.SearchIndex
	players *store.Collection[domain.Profile]
}

// NewIndexLookup creates an indexed lookup.
func NewIndexLookup(index *search.SearchIndex, s store.Store) *IndexLookup {
	return &IndexLookup{index: index, players: newPlayers(s)}
}

// FindByEmail implements ProfileLookup.
func (l *IndexLookup) FindByEmail(ctx context.Context, email string) (domain.Profile, bool, error) {
	playerID, ok, err := l.index.FindByEmail(ctx, email)
	if err != nil {
		return domain.Profile{}, false, domainerrors.Internal("player index lookup failed").WithCause(err)
	}
	if !ok {
		return domain.Profile{}, false, nil
	}

	p, ok, err := l.players.Get(ctx, playerID)
	if err != nil {
		return domain.Profile{}, false, domainerrors.Unavailable(err, "failed to read profile")
	}
	if !ok || !p.MatchesEmail(email) {
		return domain.Profile{}, false, nil
	}
	return p, true, nil
}
