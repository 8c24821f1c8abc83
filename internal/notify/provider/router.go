// internal/notify/provider/router.go
package provider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	commonerrors "pulss-notifications/internal/common/errors"
	"pulss-notifications/internal/models"
)

// ConfigSource resolves routing config with tenant-to-platform fallback.
type ConfigSource interface {
	Resolve(ctx context.Context, tenantID string, channel models.Channel) (*models.ProviderConfig, error)
}

// Router picks the vendor adapter for each send. Config is resolved fresh on
// every call so admin changes take effect without a restart.
type Router struct {
	configs  ConfigSource
	adapters map[string]NotificationProvider
}

func NewRouter(configs ConfigSource, adapters ...NotificationProvider) *Router {
	byName := make(map[string]NotificationProvider, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	return &Router{configs: configs, adapters: byName}
}

// Route returns the adapter and config for (tenantID, channel). A tenant
// with no config of its own uses the platform default; no config at all is a
// fatal NoProviderConfigured.
func (r *Router) Route(ctx context.Context, tenantID string, channel models.Channel) (NotificationProvider, *models.ProviderConfig, error) {
	cfg, err := r.configs.Resolve(ctx, tenantID, channel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, commonerrors.NewNoProviderConfiguredError(tenantID, string(channel))
		}
		return nil, nil, commonerrors.NewDatabaseError("resolve provider config", err)
	}

	adapter, ok := r.adapters[cfg.Provider]
	if !ok {
		return nil, nil, commonerrors.NewInvalidProviderConfigError(cfg.Provider,
			fmt.Sprintf("no adapter registered for channel %s", channel))
	}
	if adapter.Channel() != channel {
		return nil, nil, commonerrors.NewInvalidProviderConfigError(cfg.Provider,
			fmt.Sprintf("adapter serves channel %s, job needs %s", adapter.Channel(), channel))
	}
	return adapter, cfg, nil
}
