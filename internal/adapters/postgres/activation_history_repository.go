package postgres

import (
	"context"

	"github.com/viralforge/powerauth-server/internal/domain"
	"github.com/viralforge/powerauth-server/internal/ports"
	"gorm.io/gorm"
)

type ActivationHistoryRepository struct {
	db *gorm.DB
}

func NewActivationHistoryRepository(db *gorm.DB) *ActivationHistoryRepository {
	return &ActivationHistoryRepository{db: db}
}

func (r *ActivationHistoryRepository) Append(ctx context.Context, entry domain.ActivationHistoryEntry) error {
	model := activationHistoryModel{
		ActivationID:   entry.ActivationID,
		Status:         string(entry.Status),
		Timestamp:      entry.Timestamp,
		ExternalUserID: entry.ExternalUserID,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *ActivationHistoryRepository) ListByActivation(ctx context.Context, activationID string, limit, offset int) ([]domain.ActivationHistoryEntry, error) {
	var rows []activationHistoryModel
	err := r.db.WithContext(ctx).
		Where("activation_id = ?", activationID).
		Order("timestamp ASC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.ActivationHistoryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainHistoryEntry(row))
	}
	return out, nil
}

var _ ports.ActivationHistoryRepository = (*ActivationHistoryRepository)(nil)
