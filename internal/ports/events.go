package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CallbackEvent is the write-side payload describing one activation-history transition,
// prior to durable storage.
type CallbackEvent struct {
	CallbackID   uuid.UUID
	ActivationID string
	Status       string
	Payload      []byte
	OccurredAt   time.Time
}

// CallbackRecord is durable outbox state for one pending callback delivery.
type CallbackRecord struct {
	CallbackID     uuid.UUID
	ActivationID   string
	Status         string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// CallbackRepository persists the at-least-once outbound notification queue described in
// spec §7. History events must be durable before the callback is enqueued (spec §5
// ordering guarantee (c)); callers enqueue only after the history append has succeeded, as
// a separate write rather than in a shared transaction.
type CallbackRepository interface {
	Enqueue(ctx context.Context, event CallbackEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]CallbackRecord, error)
	MarkPublished(ctx context.Context, callbackID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, callbackID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, callbackID uuid.UUID, claimToken, errMsg string, at time.Time) error
}

// CallbackPublisher delivers one callback payload to the application's registered URL.
// Out-of-core URL management and delivery retry policy consume only this interface.
type CallbackPublisher interface {
	Publish(ctx context.Context, activationID, status string, payload []byte) error
}
