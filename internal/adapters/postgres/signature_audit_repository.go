package postgres

import (
	"context"

	"github.com/viralforge/powerauth-server/internal/domain"
	"github.com/viralforge/powerauth-server/internal/ports"
	"gorm.io/gorm"
)

type SignatureAuditRepository struct {
	db *gorm.DB
}

func NewSignatureAuditRepository(db *gorm.DB) *SignatureAuditRepository {
	return &SignatureAuditRepository{db: db}
}

func (r *SignatureAuditRepository) Append(ctx context.Context, entry domain.SignatureAuditEntry) error {
	model := signatureAuditModel{
		ActivationID:    entry.ActivationID,
		ApplicationID:   entry.ApplicationID,
		UserID:          entry.UserID,
		SignatureType:   entry.SignatureType,
		DataFingerprint: entry.DataFingerprint,
		Result:          string(entry.Result),
		Notes:           entry.Notes,
		Counter:         int64(entry.Counter),
		Timestamp:       entry.Timestamp,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *SignatureAuditRepository) ListByActivation(ctx context.Context, activationID string, limit, offset int) ([]domain.SignatureAuditEntry, error) {
	var rows []signatureAuditModel
	err := r.db.WithContext(ctx).
		Where("activation_id = ?", activationID).
		Order("timestamp ASC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.SignatureAuditEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainAuditEntry(row))
	}
	return out, nil
}

var _ ports.SignatureAuditRepository = (*SignatureAuditRepository)(nil)
