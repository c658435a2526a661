package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/PulsePoll/internal/models"
)

// DefaultWebhookTimeout bounds one webhook delivery attempt.
const DefaultWebhookTimeout = 10 * time.Second

// WebhookSink posts each outcome as a JSON document to an HTTP endpoint.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a webhook sink for the given URL.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: DefaultWebhookTimeout},
	}
}

func (s *WebhookSink) Deliver(ctx context.Context, outcome models.ResponseOutcome) error {
	body, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to encode outcome for %s: %w", outcome.SensorID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("WebhookSink delivery failed", "error", err, "sensor_id", outcome.SensorID)
		return fmt.Errorf("webhook delivery failed for %s: %w", outcome.SensorID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("WebhookSink endpoint rejected outcome", "status", resp.StatusCode, "sensor_id", outcome.SensorID)
		return fmt.Errorf("webhook returned status %d for %s", resp.StatusCode, outcome.SensorID)
	}

	slog.Debug("WebhookSink delivery succeeded", "sensor_id", outcome.SensorID)
	return nil
}
