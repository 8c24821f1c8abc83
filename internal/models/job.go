// internal/models/job.go
package models

import "time"

// JobStatus is the delivery state of a notification job. Transitions are
// monotonic: pending -> sending -> {delivered | failed | cancelled}; a job in
// a terminal state never transitions again.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusSending   JobStatus = "sending"
	StatusDelivered JobStatus = "delivered"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

const (
	RecipientTypeCustomer = "customer"
	RecipientTypeAdmin    = "admin"
)

// Cancellation reasons recorded on jobs denied by the preference filter.
const (
	ReasonChannelOptedOut = "channel_opted_out"
	ReasonTypeOptedOut    = "type_opted_out"
	ReasonQuietHours      = "quiet_hours"
	ReasonCallerCancelled = "caller_cancelled"
	ReasonPrefUnavailable = "preference_unavailable"
)

// NotificationJob is one queued/attempted send. The row is the single source
// of truth for retry state; workers mutate it only through claim-then-update
// with a status guard.
type NotificationJob struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenantId"`
	RecipientID     string     `json:"recipientId"`
	RecipientType   string     `json:"recipientType"`
	RecipientAddr   string     `json:"recipientAddr"` // channel address: email, phone, endpoint ARN or URL
	TypeCode        string     `json:"typeCode"`
	Channel         Channel    `json:"channel"`
	RenderedSubject string     `json:"renderedSubject"`
	RenderedBody    string     `json:"renderedBody"`
	Status          JobStatus  `json:"status"`
	AttemptCount    int        `json:"attemptCount"`
	MaxAttempts     int        `json:"maxAttempts"`
	NextAttemptAt   time.Time  `json:"nextAttemptAt"`
	ClaimedBy       string     `json:"claimedBy,omitempty"`
	ClaimedAt       *time.Time `json:"claimedAt,omitempty"`
	LastError       string     `json:"lastError,omitempty"`
	CancelReason    string     `json:"cancelReason,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}
