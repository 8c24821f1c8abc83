// internal/models/analytics.go
package models

import "time"

// StatRow is one daily aggregate bucket maintained by the analytics recorder.
type StatRow struct {
	TenantID string  `json:"tenantId"`
	Channel  Channel `json:"channel"`
	TypeCode string  `json:"typeCode"`
	Day      string  `json:"day"` // YYYY-MM-DD
	Outcome  Outcome `json:"outcome"`
	Count    int64   `json:"count"`
}

// StatsQuery filters an analytics range read.
type StatsQuery struct {
	TenantID string
	Channel  Channel // optional
	TypeCode string  // optional
	From     time.Time
	To       time.Time
}
