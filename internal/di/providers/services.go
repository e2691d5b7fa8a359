package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/darkscore/darkscore-server/internal/auth"
	"github.com/darkscore/darkscore-server/internal/config"
	"github.com/darkscore/darkscore-server/internal/identity"
	"github.com/darkscore/darkscore-server/internal/logger"
	"github.com/darkscore/darkscore-server/internal/service"
)

// SessionManagerHandle wraps the session manager and its idle cleanup job.
type SessionManagerHandle struct {
	*service.SessionManager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SessionManagerHandle) Shutdown() error {
	h.cancel()
	h.SessionManager.Shutdown()
	return nil
}

// ProvideSessionManager provides the client session manager and starts idle cleanup.
func ProvideSessionManager(i do.Injector) (*SessionManagerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	provider := do.MustInvoke[identity.Provider](i)
	lookup := do.MustInvoke[service.ProfileLookup](i)
	tokens := do.MustInvoke[*auth.TokenService](i)

	manager := service.NewSessionManager(
		storeHandle.Store,
		provider,
		lookup,
		tokens,
		cfg.Session.IdleTimeout,
		log.Logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	go manager.RunCleanup(ctx, cfg.Session.CleanupInterval)

	log.Info("Session manager started",
		"identity", provider.Name(),
		"idle_timeout", cfg.Session.IdleTimeout,
		"cleanup_interval", cfg.Session.CleanupInterval,
	)

	return &SessionManagerHandle{SessionManager: manager, cancel: cancel}, nil
}
