// internal/models/channel.go
package models

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelWebhook Channel = "webhook"
)

// AllChannels lists every supported channel, used for preference defaults.
var AllChannels = []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelWebhook}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelWebhook:
		return true
	}
	return false
}
