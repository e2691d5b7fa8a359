package providers

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/darkscore/darkscore-server/internal/config"
	"github.com/darkscore/darkscore-server/internal/logger"
	"github.com/darkscore/darkscore-server/internal/sse"
	"github.com/darkscore/darkscore-server/internal/store"
	"github.com/darkscore/darkscore-server/internal/store/badgerdb"
	"github.com/darkscore/darkscore-server/internal/store/firestoredb"
	"github.com/darkscore/darkscore-server/internal/store/redisdb"
	"github.com/darkscore/darkscore-server/internal/store/sqlite"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// StoreHandle wraps the remote store with shutdown capability.
type StoreHandle struct {
	store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the configured store backend.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	st, err := openStore(context.Background(), cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	return &StoreHandle{Store: st}, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendBadger:
		path := filepath.Join(cfg.DataPath, "db")
		st, err := badgerdb.Open(path, log.Logger)
		if err != nil {
			return nil, err
		}
		log.Info("Badger store opened", "path", path)
		return st, nil

	case config.BackendSQLite:
		path := filepath.Join(cfg.DataPath, "darkscore.db")
		st, err := sqlite.Open(path, log.Logger)
		if err != nil {
			return nil, err
		}
		log.Info("SQLite store opened", "path", path)
		return st, nil

	case config.BackendRedis:
		st, err := redisdb.Open(ctx, redisdb.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		}, log.Logger)
		if err != nil {
			return nil, err
		}
		log.Info("Redis store connected", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		return st, nil

	case config.BackendFirestore:
		st, err := firestoredb.Open(ctx, firestoredb.Options{
			ProjectID:       cfg.FirestoreProjectID,
			CredentialsFile: cfg.CredentialsFile,
		}, log.Logger)
		if err != nil {
			return nil, err
		}
		log.Info("Firestore store connected", "project_id", cfg.FirestoreProjectID)
		return st, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
