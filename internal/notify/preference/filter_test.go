// internal/notify/preference/filter_test.go
package preference

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulss-notifications/internal/common/logger"
	"pulss-notifications/internal/models"
)

type fakeStore struct {
	pref *models.RecipientPreference
	err  error
}

func (f *fakeStore) Get(ctx context.Context, tenantID, recipientID string) (*models.RecipientPreference, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pref, nil
}

var criticalTypes = []string{"payment_failed", "security_alert"}

func newFilter(t *testing.T, store Store) *Filter {
	t.Helper()
	return NewFilter(store, criticalTypes, logger.NewNoOpLogger())
}

func TestCheck_MissingRowDefaultsAllow(t *testing.T) {
	f := newFilter(t, &fakeStore{err: sql.ErrNoRows})

	d := f.Check(context.Background(), "tenant-a", "user-1", models.ChannelEmail, "order_confirmed", time.Now())
	assert.True(t, d.Allowed)
	require.NotNil(t, d.Preference)
	assert.True(t, d.Preference.ChannelEnabled(models.ChannelSMS))
}

func TestCheck_ChannelOptedOut(t *testing.T) {
	f := newFilter(t, &fakeStore{pref: &models.RecipientPreference{
		Channels: []models.Channel{models.ChannelEmail},
	}})

	d := f.Check(context.Background(), "tenant-a", "user-1", models.ChannelSMS, "order_confirmed", time.Now())
	assert.False(t, d.Allowed)
	assert.Equal(t, models.ReasonChannelOptedOut, d.Reason)
}

func TestCheck_TypeOptedOut(t *testing.T) {
	f := newFilter(t, &fakeStore{pref: &models.RecipientPreference{
		Channels:  models.AllChannels,
		TypeCodes: []string{"order_confirmed"},
	}})

	d := f.Check(context.Background(), "tenant-a", "user-1", models.ChannelEmail, "marketing_promo", time.Now())
	assert.False(t, d.Allowed)
	assert.Equal(t, models.ReasonTypeOptedOut, d.Reason)
}

func TestCheck_QuietHours(t *testing.T) {
	pref := &models.RecipientPreference{
		Channels:   models.AllChannels,
		QuietStart: "22:00",
		QuietEnd:   "07:00",
		Timezone:   "America/New_York",
	}

	// 03:30 UTC = 23:30 in New York (EDT), inside the window.
	at := time.Date(2026, 8, 25, 3, 30, 0, 0, time.UTC)

	f := newFilter(t, &fakeStore{pref: pref})
	d := f.Check(context.Background(), "tenant-a", "user-1", models.ChannelPush, "order_confirmed", at)
	assert.False(t, d.Allowed)
	assert.Equal(t, models.ReasonQuietHours, d.Reason)

	// Resumes at 07:00 local the next morning.
	ny, _ := time.LoadLocation("America/New_York")
	assert.Equal(t, time.Date(2026, 8, 25, 7, 0, 0, 0, ny).Unix(), d.ResumeAt.Unix())
}

func TestCheck_CriticalBypassesQuietHours(t *testing.T) {
	pref := &models.RecipientPreference{
		Channels:   models.AllChannels,
		QuietStart: "22:00",
		QuietEnd:   "07:00",
		Timezone:   "America/New_York",
	}
	at := time.Date(2026, 8, 25, 3, 30, 0, 0, time.UTC)

	f := newFilter(t, &fakeStore{pref: pref})
	d := f.Check(context.Background(), "tenant-a", "user-1", models.ChannelPush, "security_alert", at)
	assert.True(t, d.Allowed)
}

func TestCheck_CriticalDoesNotBypassOptOut(t *testing.T) {
	f := newFilter(t, &fakeStore{pref: &models.RecipientPreference{
		Channels: []models.Channel{models.ChannelEmail},
	}})

	d := f.Check(context.Background(), "tenant-a", "user-1", models.ChannelSMS, "security_alert", time.Now())
	assert.False(t, d.Allowed)
	assert.Equal(t, models.ReasonChannelOptedOut, d.Reason)
}

func TestCheck_FailsClosedOnLookupError(t *testing.T) {
	f := newFilter(t, &fakeStore{err: errors.New("connection refused")})

	d := f.Check(context.Background(), "tenant-a", "user-1", models.ChannelEmail, "order_confirmed", time.Now())
	assert.False(t, d.Allowed)
	assert.Equal(t, models.ReasonPrefUnavailable, d.Reason)

	// Critical notifications still go out when preferences are unreadable.
	d = f.Check(context.Background(), "tenant-a", "user-1", models.ChannelEmail, "payment_failed", time.Now())
	assert.True(t, d.Allowed)
}

func TestCheck_SameDayQuietWindow(t *testing.T) {
	pref := &models.RecipientPreference{
		Channels:   models.AllChannels,
		QuietStart: "13:00",
		QuietEnd:   "15:00",
	}

	f := newFilter(t, &fakeStore{pref: pref})

	inside := time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)
	d := f.Check(context.Background(), "tenant-a", "user-1", models.ChannelEmail, "order_confirmed", inside)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC).Unix(), d.ResumeAt.Unix())

	outside := time.Date(2026, 8, 25, 16, 0, 0, 0, time.UTC)
	d = f.Check(context.Background(), "tenant-a", "user-1", models.ChannelEmail, "order_confirmed", outside)
	assert.True(t, d.Allowed)
}
