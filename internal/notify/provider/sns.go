// internal/notify/provider/sns.go
package provider

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"pulss-notifications/internal/models"
)

const (
	ProviderSNSSMS  = "sns_sms"
	ProviderSNSPush = "sns_push"
)

type publishAPI interface {
	Publish(ctx context.Context, input *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSMSProvider sends SMS through AWS SNS direct publish.
type SNSSMSProvider struct {
	client          publishAPI
	defaultSenderID string
}

func NewSNSSMSProvider(client publishAPI, defaultSenderID string) *SNSSMSProvider {
	return &SNSSMSProvider{client: client, defaultSenderID: defaultSenderID}
}

func (p *SNSSMSProvider) Channel() models.Channel { return models.ChannelSMS }
func (p *SNSSMSProvider) Name() string            { return ProviderSNSSMS }

func (p *SNSSMSProvider) Send(ctx context.Context, payload Payload, cfg *models.ProviderConfig) (string, error) {
	senderID := p.defaultSenderID
	if cfg != nil && cfg.Settings["sender_id"] != "" {
		senderID = cfg.Settings["sender_id"]
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(payload.To),
		Message:     aws.String(payload.Body),
	}
	if senderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(senderID),
			},
		}
	}

	out, err := p.client.Publish(ctx, input)
	if err != nil {
		return "", classifyAWSError(ProviderSNSSMS, err)
	}
	return aws.ToString(out.MessageId), nil
}

// SNSPushProvider publishes to an SNS platform endpoint (mobile push). The
// payload address is the endpoint ARN registered for the recipient's device.
type SNSPushProvider struct {
	client publishAPI
}

func NewSNSPushProvider(client publishAPI) *SNSPushProvider {
	return &SNSPushProvider{client: client}
}

func (p *SNSPushProvider) Channel() models.Channel { return models.ChannelPush }
func (p *SNSPushProvider) Name() string            { return ProviderSNSPush }

func (p *SNSPushProvider) Send(ctx context.Context, payload Payload, cfg *models.ProviderConfig) (string, error) {
	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TargetArn: aws.String(payload.To),
		Subject:   aws.String(payload.Subject),
		Message:   aws.String(payload.Body),
	})
	if err != nil {
		return "", classifyAWSError(ProviderSNSPush, err)
	}
	return aws.ToString(out.MessageId), nil
}
