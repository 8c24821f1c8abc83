// internal/store/analytics.go
package store

import (
	"context"
	"database/sql"
	"fmt"

	"pulss-notifications/internal/models"
)

// AnalyticsStore maintains the daily aggregate counters read by the stats
// API. Counters are incremented by the recorder and rebuilt nightly from
// delivery_events.
type AnalyticsStore struct {
	db *sql.DB
}

func NewAnalyticsStore(db *sql.DB) *AnalyticsStore {
	return &AnalyticsStore{db: db}
}

// Increment bumps one daily bucket by one.
func (s *AnalyticsStore) Increment(ctx context.Context, tenantID string, channel models.Channel, typeCode, day string, outcome models.Outcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_stats (tenant_id, channel, type_code, day, outcome, count)
		VALUES ($1, $2, $3, $4, $5, 1)
		ON CONFLICT (tenant_id, channel, type_code, day, outcome)
		DO UPDATE SET count = notification_stats.count + 1`,
		tenantID, string(channel), typeCode, day, string(outcome))
	if err != nil {
		return fmt.Errorf("increment stats: %w", err)
	}
	return nil
}

// Set overwrites one bucket with an exact count (reconciliation).
func (s *AnalyticsStore) Set(ctx context.Context, row *models.StatRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_stats (tenant_id, channel, type_code, day, outcome, count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, channel, type_code, day, outcome)
		DO UPDATE SET count = EXCLUDED.count`,
		row.TenantID, string(row.Channel), row.TypeCode, row.Day, string(row.Outcome), row.Count)
	if err != nil {
		return fmt.Errorf("set stats: %w", err)
	}
	return nil
}

// Query returns the daily buckets matching q, ordered by day.
func (s *AnalyticsStore) Query(ctx context.Context, q models.StatsQuery) ([]*models.StatRow, error) {
	query := `
		SELECT tenant_id, channel, type_code, day, outcome, count
		FROM notification_stats
		WHERE tenant_id = $1 AND day >= $2 AND day <= $3`
	args := []interface{}{q.TenantID, q.From.Format("2006-01-02"), q.To.Format("2006-01-02")}

	if q.Channel != "" {
		args = append(args, string(q.Channel))
		query += fmt.Sprintf(" AND channel = $%d", len(args))
	}
	if q.TypeCode != "" {
		args = append(args, q.TypeCode)
		query += fmt.Sprintf(" AND type_code = $%d", len(args))
	}
	query += " ORDER BY day, channel, type_code, outcome"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var out []*models.StatRow
	for rows.Next() {
		var row models.StatRow
		var channel, outcome string
		if err := rows.Scan(&row.TenantID, &channel, &row.TypeCode, &row.Day, &outcome, &row.Count); err != nil {
			return nil, err
		}
		row.Channel = models.Channel(channel)
		row.Outcome = models.Outcome(outcome)
		out = append(out, &row)
	}
	return out, rows.Err()
}
