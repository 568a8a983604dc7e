package postgres

import (
	"context"
	"errors"

	"github.com/viralforge/powerauth-server/internal/domain"
	"github.com/viralforge/powerauth-server/internal/ports"
	"gorm.io/gorm"
)

type MasterKeyPairRepository struct {
	db *gorm.DB
}

func NewMasterKeyPairRepository(db *gorm.DB) *MasterKeyPairRepository {
	return &MasterKeyPairRepository{db: db}
}

func (r *MasterKeyPairRepository) GetCurrent(ctx context.Context, applicationID string) (*domain.MasterKeyPair, error) {
	var model masterKeyPairModel
	err := r.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("created_at DESC").
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return toDomainMasterKeyPair(model), nil
}

func (r *MasterKeyPairRepository) GetByID(ctx context.Context, id string) (*domain.MasterKeyPair, error) {
	var model masterKeyPairModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return toDomainMasterKeyPair(model), nil
}

var _ ports.MasterKeyPairRepository = (*MasterKeyPairRepository)(nil)
