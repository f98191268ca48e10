// Package notify tells downstream renderers when the static tables changed,
// so they can drop cached stop lists and route maps.
package notify

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"tracker.gpmetro.org/internal/logging"
)

// Webhook fires a bearer-authenticated POST on static data changes. A nil
// Webhook or an empty URL is a no-op, so callers never need to guard.
type Webhook struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

// NewWebhook builds a Webhook. Returns nil when no URL is configured.
func NewWebhook(url, token string, logger *slog.Logger) *Webhook {
	if url == "" {
		return nil
	}
	return &Webhook{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// StaticChanged fires the webhook. Delivery is best effort: a failure is
// logged and the ingest that triggered it proceeds, since stale downstream
// caches heal on the next change while a blocked ingest would not.
func (w *Webhook) StaticChanged(ctx context.Context) {
	if w == nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, nil)
	if err != nil {
		logging.LogError(w.logger, "Error building webhook request", err)
		return
	}
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		logging.LogError(w.logger, "Error delivering static change webhook", err)
		return
	}
	defer logging.SafeCloseWithLogging(resp.Body, w.logger, "webhook_response_body")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		w.logger.Error("static change webhook rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("url", w.url))
		return
	}

	logging.LogOperation(w.logger, "static_change_webhook_delivered")
}
