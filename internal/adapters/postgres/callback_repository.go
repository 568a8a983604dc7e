package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/powerauth-server/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CallbackRepository implements ports.CallbackRepository on top of pa_activation_callback,
// an at-least-once delivery queue for status-change notifications (spec §7). The claim/lease
// pattern lets multiple callback worker instances poll the same table without double-sending.
type CallbackRepository struct {
	db *gorm.DB
}

func NewCallbackRepository(db *gorm.DB) *CallbackRepository {
	return &CallbackRepository{db: db}
}

func (r *CallbackRepository) Enqueue(ctx context.Context, event ports.CallbackEvent) error {
	model := activationCallbackModel{
		CallbackID:   event.CallbackID.String(),
		ActivationID: event.ActivationID,
		Status:       event.Status,
		Payload:      string(event.Payload),
		CreatedAt:    event.OccurredAt,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *CallbackRepository) ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.CallbackRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	if claimToken == "" {
		return nil, fmt.Errorf("claim token is required")
	}

	now := time.Now().UTC()
	var rows []activationCallbackModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subquery := tx.Model(&activationCallbackModel{}).
			Select("callback_id").
			Where("published_at IS NULL").
			Where("dead_lettered_at IS NULL").
			Where("claim_until IS NULL OR claim_until < ?", now).
			Order("created_at ASC").
			Limit(limit).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})

		if err := tx.Model(&activationCallbackModel{}).
			Where("callback_id IN (?)", subquery).
			Updates(map[string]any{
				"claim_token": claimToken,
				"claim_until": claimUntil,
			}).Error; err != nil {
			return err
		}

		return tx.Where("claim_token = ?", claimToken).
			Where("published_at IS NULL").
			Where("dead_lettered_at IS NULL").
			Order("created_at ASC").
			Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	result := make([]ports.CallbackRecord, 0, len(rows))
	for _, row := range rows {
		callbackID, parseErr := uuid.Parse(row.CallbackID)
		if parseErr != nil {
			continue
		}
		result = append(result, ports.CallbackRecord{
			CallbackID:     callbackID,
			ActivationID:   row.ActivationID,
			Status:         row.Status,
			Payload:        []byte(row.Payload),
			RetryCount:     row.RetryCount,
			LastError:      row.LastError,
			CreatedAt:      row.CreatedAt,
			PublishedAt:    row.PublishedAt,
			ClaimToken:     row.ClaimToken,
			ClaimUntil:     row.ClaimUntil,
			DeadLetteredAt: row.DeadLetteredAt,
		})
	}
	return result, nil
}

func (r *CallbackRepository) MarkPublished(ctx context.Context, callbackID uuid.UUID, claimToken string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&activationCallbackModel{}).
		Where("callback_id = ?", callbackID.String()).
		Where("claim_token = ?", claimToken).
		Updates(map[string]any{
			"published_at": at,
			"claim_token":   nil,
			"claim_until":   nil,
		}).Error
}

func (r *CallbackRepository) MarkFailed(ctx context.Context, callbackID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&activationCallbackModel{}).
		Where("callback_id = ?", callbackID.String()).
		Where("claim_token = ?", claimToken).
		Updates(map[string]any{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_error":    errMsg,
			"last_error_at": at,
			"claim_token":   nil,
			"claim_until":   nil,
		}).Error
}

func (r *CallbackRepository) MarkDeadLettered(ctx context.Context, callbackID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&activationCallbackModel{}).
		Where("callback_id = ?", callbackID.String()).
		Where("claim_token = ?", claimToken).
		Updates(map[string]any{
			"retry_count":      gorm.Expr("retry_count + 1"),
			"last_error":       errMsg,
			"last_error_at":    at,
			"dead_lettered_at": at,
			"claim_token":      nil,
			"claim_until":      nil,
		}).Error
}

var _ ports.CallbackRepository = (*CallbackRepository)(nil)
