package events

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// HTTPCallbackPublisher POSTs the activation status payload to an application's registered
// callback URL. URL resolution (per-application, configured out-of-core per spec §7 Non-goals)
// is injected via urlResolver so this adapter carries no application-registry concern.
type HTTPCallbackPublisher struct {
	logger       *slog.Logger
	client       *http.Client
	urlResolver  func(activationID string) (string, bool)
}

func NewHTTPCallbackPublisher(logger *slog.Logger, client *http.Client, urlResolver func(activationID string) (string, bool)) *HTTPCallbackPublisher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPCallbackPublisher{logger: logger, client: client, urlResolver: urlResolver}
}

func (p *HTTPCallbackPublisher) Publish(ctx context.Context, activationID, status string, payload []byte) error {
	url, ok := p.urlResolver(activationID)
	if !ok || url == "" {
		// No callback URL registered for this activation's application: treat as delivered,
		// matching spec §7's "best-effort, non-blocking" framing rather than retrying forever.
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("callback endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// LoggingCallbackPublisher is a no-op delivery path useful for local development and tests,
// grounded on the teacher's LoggingPublisher.
type LoggingCallbackPublisher struct {
	logger *slog.Logger
}

func NewLoggingCallbackPublisher(logger *slog.Logger) *LoggingCallbackPublisher {
	return &LoggingCallbackPublisher{logger: logger}
}

func (p *LoggingCallbackPublisher) Publish(ctx context.Context, activationID, status string, payload []byte) error {
	p.logger.InfoContext(ctx, "published activation callback",
		"module", "events.callback_publisher",
		"layer", "adapter",
		"operation", "publish_callback",
		"outcome", "success",
		"activation_id", activationID,
		"status", status,
	)
	return nil
}
