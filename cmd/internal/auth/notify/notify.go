// Package notify tells outside systems that an account was created.
//
// Delivery is fire-and-forget: Dispatcher runs the Notifier on its own
// goroutine so a slow or failing collaborator never affects registration.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// NewAccount is the payload of a new-account notification.
type NewAccount struct {
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
}

// Notifier delivers new-account notifications.
type Notifier interface {
	NotifyNewAccount(ctx context.Context, n NewAccount) error
}

// Noop discards notifications.
type Noop struct{}

// NotifyNewAccount implements Notifier.
func (Noop) NotifyNewAccount(context.Context, NewAccount) error { return nil }

// LogNotifier records notifications in the log only.
type LogNotifier struct {
	Logger *slog.Logger
}

// NotifyNewAccount implements Notifier.
func (l LogNotifier) NotifyNewAccount(ctx context.Context, n NewAccount) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// Email is deliberately omitted from logs.
	logger.InfoContext(ctx, "notify.new_account", "account_id", n.AccountID, "username", n.Username)
	return nil
}

// WebhookNotifier POSTs the payload as JSON to URL. Non-2xx responses are errors.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier returns a WebhookNotifier. A nil client uses http.DefaultClient.
func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookNotifier{url: url, client: client}
}

// NotifyNewAccount implements Notifier.
func (w *WebhookNotifier) NotifyNewAccount(ctx context.Context, n NewAccount) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification webhook returned %s", resp.Status)
	}
	return nil
}

// DefaultTimeout bounds a single delivery when none is configured.
const DefaultTimeout = 5 * time.Second
