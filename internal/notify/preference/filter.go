// internal/notify/preference/filter.go
package preference

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pulss-notifications/internal/common/logger"
	"pulss-notifications/internal/models"
)

// Store is the preference lookup the filter depends on.
type Store interface {
	Get(ctx context.Context, tenantID, recipientID string) (*models.RecipientPreference, error)
}

// Decision is the outcome of a preference check.
type Decision struct {
	Allowed    bool
	Reason     string                      // set when not allowed
	ResumeAt   time.Time                   // set for quiet_hours: when delivery may resume
	Preference *models.RecipientPreference // resolved preference (or default)
}

// Filter applies recipient preferences before a notification is queued or
// sent. Critical type codes bypass quiet hours but never channel or category
// opt-outs.
type Filter struct {
	store    Store
	critical map[string]bool
	log      logger.Logger
}

func NewFilter(store Store, criticalTypes []string, log logger.Logger) *Filter {
	critical := make(map[string]bool, len(criticalTypes))
	for _, tc := range criticalTypes {
		critical[tc] = true
	}
	return &Filter{store: store, critical: critical, log: log}
}

// Critical reports whether typeCode is flagged critical.
func (f *Filter) Critical(typeCode string) bool {
	return f.critical[typeCode]
}

// Check evaluates whether a notification may be delivered to the recipient
// over the channel at the given instant. The filter fails closed: when the
// preference lookup errors, non-critical notifications are denied and
// critical ones proceed with defaults.
func (f *Filter) Check(ctx context.Context, tenantID, recipientID string, channel models.Channel, typeCode string, at time.Time) Decision {
	pref, err := f.store.Get(ctx, tenantID, recipientID)
	switch {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		pref = models.DefaultPreference(tenantID, recipientID)
	default:
		f.log.Error("preference lookup failed", map[string]interface{}{
			"tenant_id":    tenantID,
			"recipient_id": recipientID,
			"type_code":    typeCode,
			"error":        err.Error(),
		})
		if f.critical[typeCode] {
			return Decision{Allowed: true, Preference: models.DefaultPreference(tenantID, recipientID)}
		}
		return Decision{Reason: models.ReasonPrefUnavailable}
	}

	if !pref.ChannelEnabled(channel) {
		return Decision{Reason: models.ReasonChannelOptedOut, Preference: pref}
	}
	if !pref.TypeEnabled(typeCode) {
		return Decision{Reason: models.ReasonTypeOptedOut, Preference: pref}
	}

	if !f.critical[typeCode] {
		if resume, quiet := inQuietHours(pref, at); quiet {
			return Decision{Reason: models.ReasonQuietHours, ResumeAt: resume, Preference: pref}
		}
	}

	return Decision{Allowed: true, Preference: pref}
}

// inQuietHours reports whether at falls inside the recipient's quiet window
// and, if so, when the window ends. Windows may wrap midnight (22:00-07:00).
// An unparseable window or timezone counts as no quiet hours.
func inQuietHours(pref *models.RecipientPreference, at time.Time) (time.Time, bool) {
	if pref.QuietStart == "" || pref.QuietEnd == "" {
		return time.Time{}, false
	}

	loc := time.UTC
	if pref.Timezone != "" {
		l, err := time.LoadLocation(pref.Timezone)
		if err != nil {
			return time.Time{}, false
		}
		loc = l
	}

	local := at.In(loc)
	startH, startM, err := parseClock(pref.QuietStart)
	if err != nil {
		return time.Time{}, false
	}
	endH, endM, err := parseClock(pref.QuietEnd)
	if err != nil {
		return time.Time{}, false
	}

	start := time.Date(local.Year(), local.Month(), local.Day(), startH, startM, 0, 0, loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), endH, endM, 0, 0, loc)

	if start.Before(end) {
		// Same-day window, e.g. 13:00-15:00.
		if !local.Before(start) && local.Before(end) {
			return end, true
		}
		return time.Time{}, false
	}

	// Wrapping window, e.g. 22:00-07:00.
	if !local.Before(start) {
		return end.AddDate(0, 0, 1), true
	}
	if local.Before(end) {
		return end, true
	}
	return time.Time{}, false
}

func parseClock(s string) (int, int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid clock value %q", s)
	}
	return h, m, nil
}
