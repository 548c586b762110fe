package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	stationsapp "mobbi-manager/internal/stations/application"
)

// WebhookAlerter posts operator alerts to a chat webhook.
type WebhookAlerter struct {
	url         string
	environment string
	client      *http.Client
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewWebhookAlerter constructs an alerter. It returns nil for an empty url so
// callers can skip alerting when no webhook is configured.
func NewWebhookAlerter(url, environment string) *WebhookAlerter {
	if url == "" {
		return nil
	}
	return &WebhookAlerter{
		url:         url,
		environment: environment,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// AlertLocalDeletion reports a partner whose devices were released but whose
// local records were not fully deleted.
func (n *WebhookAlerter) AlertLocalDeletion(ctx context.Context, alert stationsapp.LocalDeletionAlert) error {
	if n == nil || n.url == "" {
		return errors.New("webhook alerter: empty url")
	}
	payload := webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: formatLocalDeletionAlert(n.environment, alert)},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook alerter: http %d", resp.StatusCode)
	}
	return nil
}

func formatLocalDeletionAlert(environment string, alert stationsapp.LocalDeletionAlert) string {
	var b strings.Builder
	b.WriteString("[Partner deletion incomplete]\n")
	if environment != "" {
		fmt.Fprintf(&b, "Environment: %s\n", environment)
	}
	fmt.Fprintf(&b, "Partner: %s", alert.PartnerID)
	if alert.PartnerName != "" {
		fmt.Fprintf(&b, " (%s)", alert.PartnerName)
	}
	b.WriteString("\n")
	if alert.AreaID != "" {
		fmt.Fprintf(&b, "Area: %s\n", alert.AreaID)
	}
	fmt.Fprintf(&b, "Failed step: %s\n", alert.Step)
	if len(alert.ReleasedSerials) > 0 {
		fmt.Fprintf(&b, "Devices already released: %s\n", strings.Join(alert.ReleasedSerials, ", "))
	}
	if alert.ContactsDeleted > 0 {
		fmt.Fprintf(&b, "Contacts deleted: %d\n", alert.ContactsDeleted)
	}
	if alert.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", alert.Error)
	}
	b.WriteString("Action: re-run the partner deletion to finish it; releasing the same devices again is safe.")
	return b.String()
}
