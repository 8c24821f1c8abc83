// internal/store/templates_test.go
package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulss-notifications/internal/models"
)

func TestTemplateStore_Resolve_TenantOverridesPlatform(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	// ORDER BY tenant_id DESC puts the tenant row before the platform row
	// (empty string sorts last), so the tenant override wins.
	mock.ExpectQuery(`SELECT[\s\S]*FROM notification_templates[\s\S]*ORDER BY tenant_id DESC`).
		WithArgs("tenant-a", "order_confirmed", "email").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "type_code", "channel", "subject", "body", "updated_at"}).
			AddRow("tenant-a", "order_confirmed", "email", "Order Confirmed - {{order_id}}", "Thanks {{name}}!", time.Now()))

	store := NewTemplateStore(db)
	tmpl, err := store.Resolve(context.Background(), "tenant-a", "order_confirmed", models.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", tmpl.TenantID)
	assert.Equal(t, "Order Confirmed - {{order_id}}", tmpl.Subject)
}

func TestTemplateStore_Resolve_Missing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT[\s\S]*FROM notification_templates`).
		WithArgs("tenant-a", "unknown_type", "sms").
		WillReturnError(sql.ErrNoRows)

	store := NewTemplateStore(db)
	_, err = store.Resolve(context.Background(), "tenant-a", "unknown_type", models.ChannelSMS)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTemplateStore_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO notification_templates[\s\S]*ON CONFLICT`).
		WithArgs("tenant-a", "order_confirmed", "email", "Subject", "Body").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewTemplateStore(db)
	err = store.Upsert(context.Background(), &models.NotificationTemplate{
		TenantID: "tenant-a",
		TypeCode: "order_confirmed",
		Channel:  models.ChannelEmail,
		Subject:  "Subject",
		Body:     "Body",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
