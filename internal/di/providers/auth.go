package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/darkscore/darkscore-server/internal/auth"
	"github.com/darkscore/darkscore-server/internal/config"
	"github.com/darkscore/darkscore-server/internal/identity"
	"github.com/darkscore/darkscore-server/internal/logger"
)

// AuthKey wraps the authentication key bytes.
type AuthKey []byte

// ProvideAuthKey loads or generates the authentication key.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	key, err := auth.LoadOrGenerateKey(cfg.Storage.DataPath)
	if err != nil {
		return nil, err
	}

	cfg.Auth.AccessTokenKey = key

	log.Info("Authentication key loaded",
		"access_token_duration", cfg.Auth.AccessTokenDuration,
	)

	return AuthKey(key), nil
}

// ProvideTokenService provides the PASETO token service.
func ProvideTokenService(i do.Injector) (*auth.TokenService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	authKey := do.MustInvoke[AuthKey](i)

	return auth.NewTokenService(authKey, cfg.Auth.AccessTokenDuration)
}

// ProvideIdentityProvider provides the provider that verifies sign-in credentials.
func ProvideIdentityProvider(i do.Injector) (identity.Provider, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Identity.Provider == config.IdentityDev {
		log.Warn("Using the dev identity provider: any e-mail address signs in")
		return identity.NewDevProvider(), nil
	}

	provider, err := identity.NewFirebaseProvider(context.Background(), cfg.Identity.FirebaseProjectID, cfg.Storage.CredentialsFile)
	if err != nil {
		return nil, err
	}
	log.Info("Firebase identity provider ready", "project_id", cfg.Identity.FirebaseProjectID)
	return provider, nil
}
