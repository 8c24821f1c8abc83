// internal/notify/provider/email.go
package provider

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/smithy-go"

	commonerrors "pulss-notifications/internal/common/errors"
	"pulss-notifications/internal/models"
)

const ProviderSESEmail = "ses_email"

type emailAPI interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESEmailProvider sends email through AWS SES. The from address comes from
// the provider config settings, falling back to the platform default.
type SESEmailProvider struct {
	client      emailAPI
	defaultFrom string
}

func NewSESEmailProvider(client emailAPI, defaultFrom string) *SESEmailProvider {
	return &SESEmailProvider{client: client, defaultFrom: defaultFrom}
}

func (p *SESEmailProvider) Channel() models.Channel { return models.ChannelEmail }
func (p *SESEmailProvider) Name() string            { return ProviderSESEmail }

func (p *SESEmailProvider) Send(ctx context.Context, payload Payload, cfg *models.ProviderConfig) (string, error) {
	from := p.defaultFrom
	if cfg != nil && cfg.Settings["from_email"] != "" {
		from = cfg.Settings["from_email"]
	}
	if from == "" {
		return "", commonerrors.NewInvalidProviderConfigError(ProviderSESEmail, "no from_email configured")
	}

	out, err := p.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(from),
		Destination: &sestypes.Destination{
			ToAddresses: []string{payload.To},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(payload.Subject)},
			Body: &sestypes.Body{
				Html: &sestypes.Content{Data: aws.String(payload.Body)},
			},
		},
	})
	if err != nil {
		return "", classifyAWSError(ProviderSESEmail, err)
	}
	return aws.ToString(out.MessageId), nil
}

// classifyAWSError maps SDK errors onto the retry taxonomy. Rejections and
// validation failures are permanent, everything else (throttling, 5xx,
// network) is transient.
func classifyAWSError(providerName string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return commonerrors.NewProviderTimeoutError(providerName)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "MessageRejected",
			"InvalidParameterValue",
			"InvalidParameter",
			"MailFromDomainNotVerifiedException",
			"AccountSendingPausedException",
			"EndpointDisabled",
			"InvalidParameterException":
			return commonerrors.NewPermanentProviderError(providerName, err)
		}
	}
	return commonerrors.NewTransientProviderError(providerName, err)
}
