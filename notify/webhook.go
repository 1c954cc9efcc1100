package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"immo-scraper/models"
	"immo-scraper/utils"
)

// WebhookPayload is the JSON body posted to the webhook.
type WebhookPayload struct {
	Summary   string               `json:"summary"`
	Events    []models.ChangeEvent `json:"events"`
	Timestamp time.Time            `json:"timestamp"`
}

// Webhook posts the change events of a run to a URL. Delivery is attempted
// once; a non-2xx response is logged and otherwise ignored.
type Webhook struct {
	url    string
	client *http.Client
	logger *utils.Logger
	now    func() time.Time
}

func NewWebhook(url string, logger *utils.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
		now:    time.Now,
	}
}

func (w *Webhook) Notify(ctx context.Context, events []models.ChangeEvent, stats models.RunStats) error {
	if len(events) == 0 {
		w.logger.Debug("[webhook] No changes, skipping delivery")
		return nil
	}

	body, err := json.Marshal(WebhookPayload{
		Summary:   Summary(events, stats),
		Events:    events,
		Timestamp: w.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("webhook: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		w.logger.Warn("[webhook] %s responded %d, events not acknowledged", w.url, resp.StatusCode)
		return nil
	}
	w.logger.Info("[webhook] Delivered %d events", len(events))
	return nil
}

// Summary renders a one-line description of a run's changes, e.g.
// "3 changes in run abc: NEW=2, PRICE_CHANGE=1".
func Summary(events []models.ChangeEvent, stats models.RunStats) string {
	counts := make(map[models.ChangeType]int)
	for _, e := range events {
		counts[e.Type]++
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)

	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = fmt.Sprintf("%s=%d", t, counts[models.ChangeType(t)])
	}

	noun := "changes"
	if len(events) == 1 {
		noun = "change"
	}
	return fmt.Sprintf("%d %s in run %s: %s", len(events), noun, stats.RunID, strings.Join(parts, ", "))
}
