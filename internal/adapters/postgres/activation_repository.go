package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/viralforge/powerauth-server/internal/domain"
	"github.com/viralforge/powerauth-server/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActivationRepository implements ports.ActivationRepository. Mutate performs the
// SELECT-FOR-UPDATE read-modify-write required by spec I2/I3/§4.2/§5: the row lock is
// held for the duration of fn, and the mutation fn returns is applied in the same
// transaction before the lock is released.
type ActivationRepository struct {
	db *gorm.DB
}

func NewActivationRepository(db *gorm.DB) *ActivationRepository {
	return &ActivationRepository{db: db}
}

func (r *ActivationRepository) Insert(ctx context.Context, rec *domain.Record) error {
	model := fromDomainActivation(rec)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return errors.Join(domain.ErrInvalidState, err)
		}
		return err
	}
	return nil
}

func (r *ActivationRepository) GetByID(ctx context.Context, activationID string) (*domain.Record, error) {
	var model activationModel
	if err := r.db.WithContext(ctx).Where("activation_id = ?", activationID).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return toDomainActivation(model), nil
}

func (r *ActivationRepository) GetByCode(ctx context.Context, code string) (*domain.Record, error) {
	var model activationModel
	if err := r.db.WithContext(ctx).Where("activation_code = ?", code).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return toDomainActivation(model), nil
}

func (r *ActivationRepository) Mutate(ctx context.Context, activationID string, fn func(rec *domain.Record) (*ports.ActivationMutation, error)) (*domain.Record, error) {
	var result *domain.Record
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model activationModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("activation_id = ?", activationID).Take(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		rec := toDomainActivation(model)

		mutation, err := fn(rec)
		if err != nil {
			return err
		}
		if mutation == nil {
			result = rec
			return nil
		}

		rec.Counter = mutation.Counter
		rec.CtrData = mutation.CtrData
		rec.FailedAttempts = mutation.FailedAttempts
		rec.Status = mutation.Status
		if mutation.BlockedReason != "" {
			rec.BlockedReason = mutation.BlockedReason
		}
		if !mutation.LastUsedAt.IsZero() {
			rec.TimestampLastUsed = mutation.LastUsedAt
		}
		if mutation.DevicePublicKey != nil {
			rec.DevicePublicKey = mutation.DevicePublicKey
		}
		if mutation.ActivationOTP != "" {
			rec.ActivationOTP = mutation.ActivationOTP
		}
		if mutation.OTPValidation != "" {
			rec.OTPValidation = mutation.OTPValidation
		}
		if mutation.ServerPrivateKey != nil {
			rec.ServerPrivateKey = mutation.ServerPrivateKey
		}
		if mutation.Tombstone {
			rec.Tombstone()
		}

		updated := fromDomainActivation(rec)
		if err := tx.Model(&activationModel{}).Where("activation_id = ?", activationID).Updates(map[string]any{
			"counter":             updated.Counter,
			"ctr_data":            updated.CtrData,
			"failed_attempts":     updated.FailedAttempts,
			"status":              updated.Status,
			"blocked_reason":      updated.BlockedReason,
			"timestamp_last_used": updated.TimestampLastUsed,
			"device_public_key":   updated.DevicePublicKey,
			"activation_otp":      updated.ActivationOTP,
			"otp_validation":      updated.OTPValidation,
			"server_private_key":  updated.ServerPrivateKey,
		}).Error; err != nil {
			return err
		}
		result = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *ActivationRepository) CodeInUse(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&activationModel{}).
		Where("activation_code = ?", code).
		Where("status IN ?", []string{string(domain.StatusCreated), string(domain.StatusPendingCommit)}).
		Count(&count).Error
	return count > 0, err
}

func (r *ActivationRepository) ListExpired(ctx context.Context, asOf time.Time, limit int) ([]*domain.Record, error) {
	var rows []activationModel
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{string(domain.StatusCreated), string(domain.StatusPendingCommit)}).
		Where("timestamp_expire < ?", asOf).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainActivation(row))
	}
	return out, nil
}

var _ ports.ActivationRepository = (*ActivationRepository)(nil)
