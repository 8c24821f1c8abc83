// internal/events/consumer_test.go
package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulss-notifications/internal/models"
)

func TestParseEnvelope(t *testing.T) {
	body := []byte(`{
		"tenant_id": "tenant-a",
		"recipient_id": "user-1",
		"recipient_type": "customer",
		"type_code": "order_confirmed",
		"channel": "sms",
		"variables": {"order_id": "1001", "phone": "+15551230000"}
	}`)

	req, err := parseEnvelope(body)
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", req.TenantID)
	assert.Equal(t, models.ChannelSMS, req.Channel)
	assert.Equal(t, "1001", req.Variables["order_id"])
}

func TestParseEnvelope_Malformed(t *testing.T) {
	_, err := parseEnvelope([]byte(`{not json`))
	assert.Error(t, err)
}

func TestParseEnvelope_MissingTenant(t *testing.T) {
	_, err := parseEnvelope([]byte(`{"recipient_id":"user-1","type_code":"order_confirmed"}`))
	assert.Error(t, err)
}
