// internal/models/event.go
package models

import "time"

// Outcome of one delivery attempt or provider callback.
type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
	OutcomeOpened    Outcome = "opened"
	OutcomeClicked   Outcome = "clicked"
	OutcomeBounced   Outcome = "bounced"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSent, OutcomeDelivered, OutcomeFailed, OutcomeOpened, OutcomeClicked, OutcomeBounced:
		return true
	}
	return false
}

// DeliveryEvent is one append-only audit row per attempt outcome. Rows are
// never updated.
type DeliveryEvent struct {
	ID                int64     `json:"id"`
	JobID             string    `json:"jobId"`
	TenantID          string    `json:"tenantId"`
	Channel           Channel   `json:"channel"`
	TypeCode          string    `json:"typeCode"`
	Outcome           Outcome   `json:"outcome"`
	Provider          string    `json:"provider,omitempty"`
	ProviderMessageID string    `json:"providerMessageId,omitempty"`
	ProviderResponse  string    `json:"providerResponse,omitempty"`
	OccurredAt        time.Time `json:"occurredAt"`
}
