// internal/store/preferences.go
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"pulss-notifications/internal/models"
)

// PreferenceStore persists per-recipient delivery settings. Channel and type
// opt-ins are stored as text arrays.
type PreferenceStore struct {
	db *sql.DB
}

func NewPreferenceStore(db *sql.DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

// Get returns the stored preference, or sql.ErrNoRows when the recipient has
// never saved one. Callers decide the default.
func (s *PreferenceStore) Get(ctx context.Context, tenantID, recipientID string) (*models.RecipientPreference, error) {
	var pref models.RecipientPreference
	var channels, typeCodes pq.StringArray

	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, recipient_id, channels, type_codes,
		       quiet_start, quiet_end, timezone, language
		FROM recipient_preferences
		WHERE tenant_id = $1 AND recipient_id = $2`,
		tenantID, recipientID,
	).Scan(&pref.TenantID, &pref.RecipientID, &channels, &typeCodes,
		&pref.QuietStart, &pref.QuietEnd, &pref.Timezone, &pref.Language)
	if err != nil {
		return nil, err
	}

	for _, c := range channels {
		pref.Channels = append(pref.Channels, models.Channel(c))
	}
	pref.TypeCodes = []string(typeCodes)
	return &pref, nil
}

// Upsert creates or replaces a recipient's preference row.
func (s *PreferenceStore) Upsert(ctx context.Context, pref *models.RecipientPreference) error {
	channels := make([]string, 0, len(pref.Channels))
	for _, c := range pref.Channels {
		channels = append(channels, string(c))
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recipient_preferences
			(tenant_id, recipient_id, channels, type_codes, quiet_start, quiet_end, timezone, language, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (tenant_id, recipient_id)
		DO UPDATE SET channels = EXCLUDED.channels, type_codes = EXCLUDED.type_codes,
			quiet_start = EXCLUDED.quiet_start, quiet_end = EXCLUDED.quiet_end,
			timezone = EXCLUDED.timezone, language = EXCLUDED.language, updated_at = now()`,
		pref.TenantID, pref.RecipientID, pq.Array(channels), pq.Array(pref.TypeCodes),
		pref.QuietStart, pref.QuietEnd, pref.Timezone, pref.Language)
	if err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}
	return nil
}
