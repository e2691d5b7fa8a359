package providers

import (
	"context"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/darkscore/darkscore-server/internal/config"
	"github.com/darkscore/darkscore-server/internal/logger"
	"github.com/darkscore/darkscore-server/internal/search"
	"github.com/darkscore/darkscore-server/internal/service"
	"github.com/darkscore/darkscore-server/internal/store"
)

// SearchIndexHandle wraps the player index and the follower that mirrors the
// store into it.
type SearchIndexHandle struct {
	*search.SearchIndex
	stop store.Unsubscribe
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	h.stop()
	return h.Close()
}

// ProvideSearchIndex provides the Bleve player index and keeps it in sync with the store.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	index, err := search.NewSearchIndex(search.Options{
		DataPath: filepath.Join(cfg.Storage.DataPath, "search"),
		Logger:   log.Logger,
	})
	if err != nil {
		return nil, err
	}

	follower := search.NewFollower(index, storeHandle.Store, log.Logger)
	stop, err := follower.Start(context.Background())
	if err != nil {
		_ = index.Close()
		return nil, err
	}

	docCount, _ := index.DocumentCount()
	log.Info("Search index initialized", "documents", docCount)

	return &SearchIndexHandle{SearchIndex: index, stop: stop}, nil
}

// ProvideProfileLookup provides the e-mail to profile resolver used for invitations.
func ProvideProfileLookup(i do.Injector) (service.ProfileLookup, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	if cfg.Storage.Lookup == config.LookupIndex {
		indexHandle := do.MustInvoke[*SearchIndexHandle](i)
		return service.NewIndexLookup(indexHandle.SearchIndex, storeHandle.Store), nil
	}
	return service.NewScanLookup(storeHandle.Store), nil
}
