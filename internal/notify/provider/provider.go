// internal/notify/provider/provider.go
package provider

import (
	"context"

	"pulss-notifications/internal/models"
)

// Payload is the channel-ready message handed to a provider adapter.
type Payload struct {
	JobID       string
	TenantID    string
	RecipientID string
	To          string // channel address: email, E.164 phone, endpoint ARN or URL
	TypeCode    string
	Channel     models.Channel
	Subject     string
	Body        string
}

// NotificationProvider is one vendor adapter. Send returns the vendor's
// message id on acceptance. Errors must be classified: transient provider
// errors are retried by the dispatcher, permanent ones fail the job.
type NotificationProvider interface {
	Send(ctx context.Context, payload Payload, cfg *models.ProviderConfig) (string, error)
	Channel() models.Channel
	Name() string
}
