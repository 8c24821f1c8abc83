// internal/store/events.go
package store

import (
	"context"
	"database/sql"
	"fmt"

	"pulss-notifications/internal/models"
)

// EventStore appends delivery audit rows. The table is append-only; there is
// no update path.
type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// Append records one attempt outcome.
func (s *EventStore) Append(ctx context.Context, ev *models.DeliveryEvent) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO delivery_events
			(job_id, tenant_id, channel, type_code, outcome,
			 provider, provider_message_id, provider_response, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id`,
		ev.JobID, ev.TenantID, string(ev.Channel), ev.TypeCode, string(ev.Outcome),
		ev.Provider, ev.ProviderMessageID, ev.ProviderResponse, ev.OccurredAt,
	).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("append delivery event: %w", err)
	}
	return nil
}

// ListByJob returns the audit trail of one job, oldest first.
func (s *EventStore) ListByJob(ctx context.Context, tenantID, jobID string) ([]*models.DeliveryEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, tenant_id, channel, type_code, outcome,
		       provider, provider_message_id, provider_response, occurred_at
		FROM delivery_events
		WHERE tenant_id = $1 AND job_id = $2
		ORDER BY occurred_at, id`,
		tenantID, jobID)
	if err != nil {
		return nil, fmt.Errorf("list delivery events: %w", err)
	}
	defer rows.Close()

	var out []*models.DeliveryEvent
	for rows.Next() {
		var ev models.DeliveryEvent
		var channel, outcome string
		err := rows.Scan(&ev.ID, &ev.JobID, &ev.TenantID, &channel, &ev.TypeCode,
			&outcome, &ev.Provider, &ev.ProviderMessageID, &ev.ProviderResponse, &ev.OccurredAt)
		if err != nil {
			return nil, err
		}
		ev.Channel = models.Channel(channel)
		ev.Outcome = models.Outcome(outcome)
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// RecountDay recomputes the daily aggregates for one day straight from the
// audit table (nightly reconciliation). Day is YYYY-MM-DD.
func (s *EventStore) RecountDay(ctx context.Context, day string) ([]*models.StatRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, channel, type_code, outcome, count(*)
		FROM delivery_events
		WHERE occurred_at >= $1::date AND occurred_at < $1::date + interval '1 day'
		GROUP BY tenant_id, channel, type_code, outcome`,
		day)
	if err != nil {
		return nil, fmt.Errorf("recount delivery events: %w", err)
	}
	defer rows.Close()

	var out []*models.StatRow
	for rows.Next() {
		var row models.StatRow
		var channel, outcome string
		if err := rows.Scan(&row.TenantID, &channel, &row.TypeCode, &outcome, &row.Count); err != nil {
			return nil, err
		}
		row.Channel = models.Channel(channel)
		row.Outcome = models.Outcome(outcome)
		row.Day = day
		out = append(out, &row)
	}
	return out, rows.Err()
}
