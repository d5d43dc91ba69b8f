// Package notify delivers notification intents to the studio's mailer
// webhook. Retries happen here and never block a caller beyond the retry
// budget.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"studio_gallery_server/internal/services"
	"studio_gallery_server/pkg/metrics"

	"github.com/avast/retry-go"
	"github.com/sirupsen/logrus"
)

// permanentError marks a response that retrying will not fix
type permanentError struct {
	status int
}

func (e *permanentError) Error() string {
	return fmt.Sprintf("webhook rejected notification with status %d", e.status)
}

// WebhookNotifier posts intents as JSON
type WebhookNotifier struct {
	url         string
	client      *http.Client
	maxAttempts uint
	delay       time.Duration
	logger      *logrus.Logger
}

func NewWebhookNotifier(url string, maxAttempts int, logger *logrus.Logger) *WebhookNotifier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &WebhookNotifier{
		url:         url,
		client:      &http.Client{Timeout: 10 * time.Second},
		maxAttempts: uint(maxAttempts),
		delay:       time.Second,
		logger:      logger,
	}
}

// Notify posts intent, retrying transport errors and 5xx responses
func (n *WebhookNotifier) Notify(ctx context.Context, intent services.Intent) error {
	body, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	err = retry.Do(
		func() error {
			return n.post(ctx, body)
		},
		retry.Attempts(n.maxAttempts),
		retry.Delay(n.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var perm *permanentError
			return !errors.As(err, &perm)
		}),
		retry.OnRetry(func(attempt uint, err error) {
			n.logger.WithError(err).WithFields(logrus.Fields{
				"kind":    intent.Kind,
				"attempt": attempt + 1,
			}).Warn("Notification attempt failed")
		}),
	)
	metrics.RecordNotification(string(intent.Kind), err == nil)
	if err != nil {
		return fmt.Errorf("failed to deliver notification after retries: %w", err)
	}
	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return &permanentError{status: 0}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return &permanentError{status: resp.StatusCode}
	}
	return nil
}

// LogNotifier writes intents to the log. It is used when no webhook is
// configured.
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, intent services.Intent) error {
	n.logger.WithFields(logrus.Fields{
		"kind":      intent.Kind,
		"recipient": intent.Recipient,
		"share_url": intent.ShareURL,
		"title":     intent.Title,
	}).Info("Notification intent")
	metrics.RecordNotification(string(intent.Kind), true)
	return nil
}
