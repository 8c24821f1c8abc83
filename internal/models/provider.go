// internal/models/provider.go
package models

import "time"

// ProviderConfig selects the external vendor for one (tenant, channel) pair.
// Platform-level defaults are stored with an empty tenant id. Settings hold
// vendor-specific values (from address, webhook URL, sender id);
// CredentialsRef points at the secret store entry, credentials are never
// persisted inline.
type ProviderConfig struct {
	TenantID       string            `json:"tenantId"`
	Channel        Channel           `json:"channel"`
	Provider       string            `json:"provider"`
	CredentialsRef string            `json:"credentialsRef,omitempty"`
	Settings       map[string]string `json:"settings,omitempty"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}
