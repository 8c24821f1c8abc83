// internal/store/events_test.go
package store

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulss-notifications/internal/models"
)

func TestEventStore_Append(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	occurred := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO delivery_events[\s\S]*RETURNING id`).
		WithArgs("job-1", "tenant-a", "email", "order_confirmed", "sent",
			"ses_email", "msg-1", "", occurred).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	store := NewEventStore(db)
	ev := &models.DeliveryEvent{
		JobID:             "job-1",
		TenantID:          "tenant-a",
		Channel:           models.ChannelEmail,
		TypeCode:          "order_confirmed",
		Outcome:           models.OutcomeSent,
		Provider:          "ses_email",
		ProviderMessageID: "msg-1",
		OccurredAt:        occurred,
	}
	require.NoError(t, store.Append(context.Background(), ev))
	assert.Equal(t, int64(7), ev.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStore_RecountDay(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT tenant_id, channel, type_code, outcome, count[\s\S]*GROUP BY tenant_id`).
		WithArgs("2026-08-24").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "channel", "type_code", "outcome", "count"}).
			AddRow("tenant-a", "email", "order_confirmed", "sent", int64(42)).
			AddRow("tenant-a", "sms", "order_confirmed", "failed", int64(3)))

	store := NewEventStore(db)
	rows, err := store.RecountDay(context.Background(), "2026-08-24")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2026-08-24", rows[0].Day)
	assert.Equal(t, models.ChannelEmail, rows[0].Channel)
	assert.Equal(t, models.OutcomeSent, rows[0].Outcome)
	assert.Equal(t, int64(42), rows[0].Count)
	assert.Equal(t, models.OutcomeFailed, rows[1].Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyticsStore_SetOverwritesBucket(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	// Reconciliation writes the exact recount, not an increment.
	mock.ExpectExec(`INSERT INTO notification_stats[\s\S]*DO UPDATE SET count = EXCLUDED.count`).
		WithArgs("tenant-a", "email", "order_confirmed", "2026-08-24", "sent", int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewAnalyticsStore(db)
	err = store.Set(context.Background(), &models.StatRow{
		TenantID: "tenant-a",
		Channel:  models.ChannelEmail,
		TypeCode: "order_confirmed",
		Day:      "2026-08-24",
		Outcome:  models.OutcomeSent,
		Count:    42,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
