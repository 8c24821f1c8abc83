// internal/models/preference.go
package models

// RecipientPreference holds per-recipient delivery settings. A missing row
// means everything enabled with no quiet hours.
type RecipientPreference struct {
	TenantID    string    `json:"tenantId"`
	RecipientID string    `json:"recipientId"`
	Channels    []Channel `json:"channels"`  // enabled channels
	TypeCodes   []string  `json:"typeCodes"` // enabled notification categories; empty = all
	QuietStart  string    `json:"quietStart,omitempty"` // "HH:MM", recipient-local
	QuietEnd    string    `json:"quietEnd,omitempty"`
	Timezone    string    `json:"timezone,omitempty"`
	Language    string    `json:"language,omitempty"`
}

// ChannelEnabled reports whether the recipient accepts the channel.
func (p *RecipientPreference) ChannelEnabled(c Channel) bool {
	for _, enabled := range p.Channels {
		if enabled == c {
			return true
		}
	}
	return false
}

// TypeEnabled reports whether the recipient accepts the type category.
// An empty list means no category opt-outs.
func (p *RecipientPreference) TypeEnabled(typeCode string) bool {
	if len(p.TypeCodes) == 0 {
		return true
	}
	for _, enabled := range p.TypeCodes {
		if enabled == typeCode {
			return true
		}
	}
	return false
}

// DefaultPreference returns the settings applied when a recipient has never
// saved preferences.
func DefaultPreference(tenantID, recipientID string) *RecipientPreference {
	return &RecipientPreference{
		TenantID:    tenantID,
		RecipientID: recipientID,
		Channels:    append([]Channel(nil), AllChannels...),
	}
}
