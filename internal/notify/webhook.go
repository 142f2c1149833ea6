package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/miragesec/mirage/internal/config"
	"github.com/miragesec/mirage/internal/logging"
)

// Event describes one served decoy for outbound notification.
type Event struct {
	Event        string    `json:"event"`
	Timestamp    time.Time `json:"timestamp"`
	SourceIP     string    `json:"source_ip"`
	Endpoint     string    `json:"endpoint"`
	ResponseType string    `json:"response_type"`
	Method       string    `json:"method"`
}

// WebhookNotifier fires a JSON webhook whenever a decoy is served, so an
// operator hears about a deceived client without tailing the audit logs.
// Delivery is best effort and fully asynchronous; a dead webhook endpoint
// never slows down or fails a request.
type WebhookNotifier struct {
	cfg    *config.NotifyConfig
	client *http.Client
}

func NewWebhookNotifier(cfg *config.NotifyConfig) *WebhookNotifier {
	return &WebhookNotifier{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

func (n *WebhookNotifier) Enabled() bool {
	return n != nil && n.cfg.WebhookURL != ""
}

// DecoyServed queues a notification for a served decoy.
func (n *WebhookNotifier) DecoyServed(sourceIP, method, endpoint, responseType string) {
	if !n.Enabled() {
		return
	}

	event := &Event{
		Event:        "deception_served",
		Timestamp:    time.Now().UTC(),
		SourceIP:     sourceIP,
		Endpoint:     endpoint,
		ResponseType: responseType,
		Method:       method,
	}

	go n.fire(event)
}

// fire posts the event with retry.
func (n *WebhookNotifier) fire(event *Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		logging.Error("[WEBHOOK] Cannot marshal event: %v", err)
		return
	}

	var lastErr error
	for attempt := 1; attempt <= n.cfg.RetryCount; attempt++ {
		err := n.send(payload)
		if err == nil {
			logging.Info("[WEBHOOK] ✓ Notified %s (%s decoy for %s)", n.cfg.WebhookURL, event.ResponseType, event.SourceIP)
			return
		}

		lastErr = err
		logging.Error("[WEBHOOK] Attempt %d/%d failed: %v", attempt, n.cfg.RetryCount, err)

		if attempt < n.cfg.RetryCount {
			time.Sleep(time.Duration(n.cfg.RetryDelaySeconds) * time.Second)
		}
	}

	logging.Error("[WEBHOOK] ✗ Giving up after %d attempts: %v", n.cfg.RetryCount, lastErr)
}

func (n *WebhookNotifier) send(payload []byte) error {
	req, err := http.NewRequest(http.MethodPost, n.cfg.WebhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mirage-Webhook/1.0")
	if n.cfg.AuthToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", n.cfg.AuthToken))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	return nil
}
