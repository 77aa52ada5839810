package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigFastest

// DeliveryHeader carries the id of a webhook delivery
const DeliveryHeader = "X-Delivery-ID"

// WebhookPayload is the body POSTed for every notification
type WebhookPayload struct {
	DeliveryID string    `json:"delivery_id"`
	UserName   string    `json:"user_name"`
	BookTitle  string    `json:"book_title"`
	SentAt     time.Time `json:"sent_at"`
}

// WebhookNotifier POSTs notifications as JSON to a fixed URL
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a notifier for url. A zero timeout leaves the
// client without a deadline.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, userName, bookTitle string) error {
	payload := WebhookPayload{
		DeliveryID: uuid.New().String(),
		UserName:   userName,
		BookTitle:  bookTitle,
		SentAt:     w.now().UTC(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DeliveryHeader, payload.DeliveryID)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook delivery %s failed: %s", payload.DeliveryID, resp.Status)
	}
	return nil
}
