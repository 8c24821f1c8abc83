// internal/store/providers.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"pulss-notifications/internal/models"
)

// ProviderStore persists provider routing configuration. Settings are a jsonb
// column of vendor-specific values.
type ProviderStore struct {
	db *sql.DB
}

func NewProviderStore(db *sql.DB) *ProviderStore {
	return &ProviderStore{db: db}
}

// Resolve returns the provider config for (tenantID, channel), preferring the
// tenant's own row over the platform default. Returns sql.ErrNoRows when
// neither exists.
func (s *ProviderStore) Resolve(ctx context.Context, tenantID string, channel models.Channel) (*models.ProviderConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, channel, provider, credentials_ref, settings, updated_at
		FROM provider_configs
		WHERE tenant_id IN ($1, '') AND channel = $2
		ORDER BY tenant_id DESC
		LIMIT 1`,
		tenantID, string(channel))
	return scanProviderConfig(row)
}

// List returns a tenant's provider configs.
func (s *ProviderStore) List(ctx context.Context, tenantID string) ([]*models.ProviderConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, channel, provider, credentials_ref, settings, updated_at
		FROM provider_configs
		WHERE tenant_id = $1
		ORDER BY channel`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list provider configs: %w", err)
	}
	defer rows.Close()

	var out []*models.ProviderConfig
	for rows.Next() {
		cfg, err := scanProviderConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// Upsert creates or replaces the config for one (tenant, channel) pair.
func (s *ProviderStore) Upsert(ctx context.Context, cfg *models.ProviderConfig) error {
	settings, err := json.Marshal(cfg.Settings)
	if err != nil {
		return fmt.Errorf("marshal provider settings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO provider_configs (tenant_id, channel, provider, credentials_ref, settings, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (tenant_id, channel)
		DO UPDATE SET provider = EXCLUDED.provider, credentials_ref = EXCLUDED.credentials_ref,
			settings = EXCLUDED.settings, updated_at = now()`,
		cfg.TenantID, string(cfg.Channel), cfg.Provider, cfg.CredentialsRef, settings)
	if err != nil {
		return fmt.Errorf("upsert provider config: %w", err)
	}
	return nil
}

// Delete removes a tenant's config for a channel. Returns sql.ErrNoRows when
// absent.
func (s *ProviderStore) Delete(ctx context.Context, tenantID string, channel models.Channel) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM provider_configs WHERE tenant_id = $1 AND channel = $2`,
		tenantID, string(channel))
	if err != nil {
		return fmt.Errorf("delete provider config: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanProviderConfig(row rowScanner) (*models.ProviderConfig, error) {
	var cfg models.ProviderConfig
	var channel string
	var settings []byte

	err := row.Scan(&cfg.TenantID, &channel, &cfg.Provider, &cfg.CredentialsRef, &settings, &cfg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	cfg.Channel = models.Channel(channel)
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &cfg.Settings); err != nil {
			return nil, fmt.Errorf("decode provider settings: %w", err)
		}
	}
	return &cfg, nil
}
