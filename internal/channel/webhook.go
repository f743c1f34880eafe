package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Rrens/mattressai-engine/internal/domain"
	"github.com/Rrens/mattressai-engine/internal/security"
)

// WebhookSender posts the payload to a tenant URL, signed with HMAC-SHA256
type WebhookSender struct {
	secret string
	client *http.Client
}

// NewWebhookSender creates a new webhook sender
func NewWebhookSender(secret string) *WebhookSender {
	return &WebhookSender{secret: secret, client: newHTTPClient()}
}

func (s *WebhookSender) Name() string { return domain.ChannelWebhook }

func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	url := msg.Config.String("url")
	if url == "" {
		return missingConfig(domain.ChannelWebhook, "url")
	}

	body, err := WebhookBody(msg.TenantID, msg.Payload)
	if err != nil {
		return err
	}

	headers := map[string]string{
		security.SignatureHeader: security.SignPayload(s.secret, body),
		security.TenantHeader:    msg.TenantID,
	}
	return post(ctx, s.client, "webhook", url, "application/json", headers, body)
}

// WebhookBody is {"tenant": ..., <payload fields>} without the channel config
func WebhookBody(tenantID string, payload domain.AlertPayload) ([]byte, error) {
	payload.Config = nil
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to build webhook payload: %w", err)
	}
	fields["tenant"] = tenantID
	return json.Marshal(fields)
}
