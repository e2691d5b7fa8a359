package search

import (
	"context"
	"log/slog"
	"sync"

	"github.com/darkscore/darkscore-server/internal/domain"
	"github.com/darkscore/darkscore-server/internal/store"
)

// Follower mirrors the players collection into the index.
type Follower struct {
	index   *SearchIndex
	players *store.Collection[domain.Profile]
	logger  *slog.Logger

	mu      sync.Mutex
	indexed map[string]PlayerDocument
	ready   chan struct{}
	once    sync.Once
}

// NewFollower creates a follower for index over s.
func NewFollower(index *SearchIndex, s store.Store, logger *slog.Logger) *Follower {
	if logger == nil {
		logger = slog.Default()
	}
	return &Follower{
		index:   index,
		players: store.NewCollection(s, store.PlayersPath, func(p *domain.Profile, id string) { p.ID = id }),
		logger:  logger,
		indexed: make(map[string]PlayerDocument),
		ready:   make(chan struct{}),
	}
}

// Start subscribes to the players collection. The index catches up asynchronously;
// Ready is closed after the first snapshot has been applied.
func (f *Follower) Start(ctx context.Context) (store.Unsubscribe, error) {
	return f.players.Subscribe(ctx, func(profiles []domain.Profile, err error) {
		if err != nil {
			f.logger.Warn("skipping malformed player records", "error", err)
		}
		f.apply(profiles)
		f.once.Do(func() { close(f.ready) })
	})
}

// Ready is closed once the index reflects the store.
func (f *Follower) Ready() <-chan struct{} {
	return f.ready
}

func (f *Follower) apply(profiles []domain.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()

	seen := make(map[string]bool, len(profiles))
	var changed []PlayerDocument
	for _, p := range profiles {
		doc := ProfileToDocument(p)
		seen[doc.ID] = true
		if prev, ok := f.indexed[doc.ID]; ok && prev == doc {
			continue
		}
		changed = append(changed, doc)
	}

	var deleted []string
	for id := range f.indexed {
		if !seen[id] {
			deleted = append(deleted, id)
		}
	}

	if err := f.index.Apply(changed, deleted); err != nil {
		f.logger.Error("failed to update player index", "error", err)
		return
	}

	for _, doc := range changed {
		f.indexed[doc.ID] = doc
	}
	for _, id := range deleted {
		delete(f.indexed, id)
	}
	if len(changed) > 0 || len(deleted) > 0 {
		f.logger.Debug("player index updated", "indexed", len(changed), "removed", len(deleted))
	}
}
