// internal/models/template.go
package models

import "time"

// NotificationTemplate holds the subject/body text for one
// (tenant, type_code, channel) combination. Platform defaults are stored with
// an empty tenant id.
type NotificationTemplate struct {
	TenantID  string    `json:"tenantId"`
	TypeCode  string    `json:"typeCode"`
	Channel   Channel   `json:"channel"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PlatformTenantID marks rows owned by the platform rather than a tenant.
const PlatformTenantID = ""
