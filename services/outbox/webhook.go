package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookDeliverer posts messages to the chat gateway, which owns the actual
// platform connections and rate limits.
type WebhookDeliverer struct {
	gatewayURL string
	httpClient *http.Client
}

func NewWebhookDeliverer(gatewayURL string) *WebhookDeliverer {
	return &WebhookDeliverer{
		gatewayURL: gatewayURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type deliverRequest struct {
	TenantID    string `json:"tenant_id"`
	Platform    string `json:"platform"`
	RecipientID string `json:"recipient_id"`
	ChannelID   string `json:"channel_id"`
	Body        string `json:"body"`
}

func (d *WebhookDeliverer) Deliver(ctx context.Context, msg *Message) error {
	payload, err := json.Marshal(deliverRequest{
		TenantID:    msg.TenantID,
		Platform:    msg.Platform,
		RecipientID: msg.RecipientID,
		ChannelID:   msg.ChannelID,
		Body:        msg.Body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.gatewayURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("chat gateway returned status %d", resp.StatusCode)
	}
	return nil
}
