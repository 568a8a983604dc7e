package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/powerauth-server/internal/ports"
)

// CallbackWorker pulls unpublished activation-status callbacks and delivers them. This
// separates the transactional history write from outbound HTTP delivery so a slow or
// unreachable application callback URL never blocks an activation/signature request
// (spec §7 at-least-once, out-of-band delivery).
type CallbackWorker struct {
	logger     *slog.Logger
	callbacks  ports.CallbackRepository
	publisher  ports.CallbackPublisher
	interval   time.Duration
	batchSize  int
	claimTTL   time.Duration
	maxRetries int
}

func NewCallbackWorker(
	logger *slog.Logger,
	callbacks ports.CallbackRepository,
	publisher ports.CallbackPublisher,
	interval time.Duration,
	batchSize int,
	claimTTL time.Duration,
	maxRetries int,
) *CallbackWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if claimTTL <= 0 {
		claimTTL = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &CallbackWorker{
		logger:     logger,
		callbacks:  callbacks,
		publisher:  publisher,
		interval:   interval,
		batchSize:  batchSize,
		claimTTL:   claimTTL,
		maxRetries: maxRetries,
	}
}

// Run executes the periodic callback delivery loop until context cancellation.
func (w *CallbackWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.processOnce(ctx); err != nil {
			w.logger.ErrorContext(ctx, "callback iteration failed",
				"module", "events.callback_worker",
				"layer", "adapter",
				"operation", "callback_process_once",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *CallbackWorker) processOnce(ctx context.Context) error {
	claimToken := uuid.NewString()
	records, err := w.callbacks.ClaimUnpublished(ctx, w.batchSize, claimToken, time.Now().UTC().Add(w.claimTTL))
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	published := 0
	failed := 0
	deadLettered := 0
	for _, rec := range records {
		if rec.RetryCount >= w.maxRetries {
			deadLettered++
			_ = w.callbacks.MarkDeadLettered(ctx, rec.CallbackID, claimToken, "retry threshold reached before publish", now)
			continue
		}

		if err := w.publisher.Publish(ctx, rec.ActivationID, rec.Status, rec.Payload); err != nil {
			failed++
			retriesAfterFailure := rec.RetryCount + 1
			if retriesAfterFailure >= w.maxRetries {
				deadLettered++
				w.logger.ErrorContext(ctx, "callback moved to dlq",
					"module", "events.callback_worker",
					"layer", "adapter",
					"operation", "publish_callback",
					"outcome", "failure",
					"callback_id", rec.CallbackID,
					"activation_id", rec.ActivationID,
					"status", rec.Status,
					"retry_count", retriesAfterFailure,
					"error", err,
				)
				_ = w.callbacks.MarkDeadLettered(ctx, rec.CallbackID, claimToken, err.Error(), now)
				continue
			}

			w.logger.WarnContext(ctx, "callback publish failed; retry scheduled",
				"module", "events.callback_worker",
				"layer", "adapter",
				"operation", "publish_callback",
				"outcome", "failure",
				"callback_id", rec.CallbackID,
				"activation_id", rec.ActivationID,
				"status", rec.Status,
				"retry_count", retriesAfterFailure,
				"error", err,
			)
			_ = w.callbacks.MarkFailed(ctx, rec.CallbackID, claimToken, err.Error(), now)
			continue
		}
		published++
		_ = w.callbacks.MarkPublished(ctx, rec.CallbackID, claimToken, now)
	}
	if len(records) > 0 {
		w.logger.InfoContext(ctx, "callback batch processed",
			"module", "events.callback_worker",
			"layer", "adapter",
			"operation", "callback_process_once",
			"outcome", "success",
			"batch_size", len(records),
			"published_count", published,
			"failed_count", failed,
			"dead_lettered_count", deadLettered,
		)
	}
	return nil
}
