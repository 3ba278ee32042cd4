// README: Notification dispatch collaborator (webhook-backed).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Kind selects the downstream message template.
type Kind string

const (
	KindAssignment  Kind = "assignment"
	KindStatus      Kind = "status_change"
	KindPayment     Kind = "payment"
	KindDeliverable Kind = "deliverable"
)

// Dispatcher hands a notification request to the delivery mechanism.
// Delivery success is not this service's concern.
type Dispatcher interface {
	Send(ctx context.Context, recipientTokens []string, kind Kind, payload map[string]any) error
}

// WebhookDispatcher POSTs notification requests to an external delivery
// endpoint as JSON.
type WebhookDispatcher struct {
	url    string
	client *http.Client
	log    *logrus.Logger
}

func NewWebhookDispatcher(url string, log *logrus.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{url: url, client: &http.Client{}, log: log}
}

type webhookPayload struct {
	Recipients []string       `json:"recipients"`
	Template   Kind           `json:"template"`
	Payload    map[string]any `json:"payload"`
}

func (d *WebhookDispatcher) Send(ctx context.Context, recipientTokens []string, kind Kind, payload map[string]any) error {
	body, err := json.Marshal(webhookPayload{
		Recipients: recipientTokens,
		Template:   kind,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned %d", resp.StatusCode)
	}
	return nil
}

// NopDispatcher drops notifications; used when no webhook is configured.
type NopDispatcher struct{}

func (NopDispatcher) Send(context.Context, []string, Kind, map[string]any) error { return nil }
