// internal/store/templates.go
package store

import (
	"context"
	"database/sql"
	"fmt"

	"pulss-notifications/internal/models"
)

// TemplateStore persists notification templates. Lookups fall back from the
// tenant's own row to the platform default (empty tenant id).
type TemplateStore struct {
	db *sql.DB
}

func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// Resolve returns the template for (tenantID, typeCode, channel), preferring
// the tenant override over the platform default. Returns sql.ErrNoRows when
// neither exists.
func (s *TemplateStore) Resolve(ctx context.Context, tenantID, typeCode string, channel models.Channel) (*models.NotificationTemplate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, type_code, channel, subject, body, updated_at
		FROM notification_templates
		WHERE tenant_id IN ($1, '') AND type_code = $2 AND channel = $3
		ORDER BY tenant_id DESC
		LIMIT 1`,
		tenantID, typeCode, string(channel))
	return scanTemplate(row)
}

// Get fetches an exact template row with no fallback (admin reads).
func (s *TemplateStore) Get(ctx context.Context, tenantID, typeCode string, channel models.Channel) (*models.NotificationTemplate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, type_code, channel, subject, body, updated_at
		FROM notification_templates
		WHERE tenant_id = $1 AND type_code = $2 AND channel = $3`,
		tenantID, typeCode, string(channel))
	return scanTemplate(row)
}

// List returns a tenant's own templates (not the platform defaults).
func (s *TemplateStore) List(ctx context.Context, tenantID string) ([]*models.NotificationTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, type_code, channel, subject, body, updated_at
		FROM notification_templates
		WHERE tenant_id = $1
		ORDER BY type_code, channel`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []*models.NotificationTemplate
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tmpl)
	}
	return out, rows.Err()
}

// Upsert creates or replaces a template row.
func (s *TemplateStore) Upsert(ctx context.Context, tmpl *models.NotificationTemplate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_templates (tenant_id, type_code, channel, subject, body, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (tenant_id, type_code, channel)
		DO UPDATE SET subject = EXCLUDED.subject, body = EXCLUDED.body, updated_at = now()`,
		tmpl.TenantID, tmpl.TypeCode, string(tmpl.Channel), tmpl.Subject, tmpl.Body)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}

// Delete removes a tenant override. Returns sql.ErrNoRows when absent.
func (s *TemplateStore) Delete(ctx context.Context, tenantID, typeCode string, channel models.Channel) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM notification_templates
		WHERE tenant_id = $1 AND type_code = $2 AND channel = $3`,
		tenantID, typeCode, string(channel))
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
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

func scanTemplate(row rowScanner) (*models.NotificationTemplate, error) {
	var tmpl models.NotificationTemplate
	var channel string
	err := row.Scan(&tmpl.TenantID, &tmpl.TypeCode, &channel, &tmpl.Subject, &tmpl.Body, &tmpl.UpdatedAt)
	if err != nil {
		return nil, err
	}
	tmpl.Channel = models.Channel(channel)
	return &tmpl, nil
}
