// internal/notify/provider/webhook.go
package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	commonerrors "pulss-notifications/internal/common/errors"
	commonhttp "pulss-notifications/internal/common/http"
	"pulss-notifications/internal/models"
)

const ProviderWebhook = "webhook"

// webhookPayloadSchema guards the shape of every outbound webhook body. A
// body that fails validation is a rendering bug, never worth retrying.
const webhookPayloadSchema = `{
	"type": "object",
	"required": ["type", "data"],
	"properties": {
		"type": {"type": "string", "minLength": 1},
		"data": {"type": "object"}
	}
}`

// WebhookProvider POSTs the structured payload to the tenant's endpoint,
// signed with HMAC-SHA256 when a signing key is configured.
type WebhookProvider struct {
	client     *commonhttp.Client
	schema     *gojsonschema.Schema
	signingKey string
}

func NewWebhookProvider(client *commonhttp.Client, signingKey string) (*WebhookProvider, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(webhookPayloadSchema))
	if err != nil {
		return nil, fmt.Errorf("compile webhook schema: %w", err)
	}
	return &WebhookProvider{client: client, schema: schema, signingKey: signingKey}, nil
}

func (p *WebhookProvider) Channel() models.Channel { return models.ChannelWebhook }
func (p *WebhookProvider) Name() string            { return ProviderWebhook }

func (p *WebhookProvider) Send(ctx context.Context, payload Payload, cfg *models.ProviderConfig) (string, error) {
	url := payload.To
	if url == "" && cfg != nil {
		url = cfg.Settings["url"]
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", commonerrors.NewInvalidProviderConfigError(ProviderWebhook, "no webhook url configured")
	}

	result, err := p.schema.Validate(gojsonschema.NewStringLoader(payload.Body))
	if err != nil {
		return "", commonerrors.NewPermanentProviderError(ProviderWebhook, fmt.Errorf("payload not valid JSON: %w", err))
	}
	if !result.Valid() {
		return "", commonerrors.NewPermanentProviderError(ProviderWebhook,
			fmt.Errorf("payload schema violation: %v", result.Errors()))
	}

	body := []byte(payload.Body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", commonerrors.NewPermanentProviderError(ProviderWebhook, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Notification-ID", payload.JobID)
	if p.signingKey != "" {
		req.Header.Set("X-Signature", signBody(p.signingKey, body))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", commonerrors.NewProviderTimeoutError(ProviderWebhook)
		}
		return "", commonerrors.NewTransientProviderError(ProviderWebhook, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return payload.JobID, nil
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return "", commonerrors.NewTransientProviderError(ProviderWebhook,
			fmt.Errorf("endpoint returned %d", resp.StatusCode))
	default:
		return "", commonerrors.NewPermanentProviderError(ProviderWebhook,
			fmt.Errorf("endpoint returned %d", resp.StatusCode))
	}
}

func signBody(key string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
