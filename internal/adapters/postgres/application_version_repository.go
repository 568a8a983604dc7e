package postgres

import (
	"context"
	"errors"

	"github.com/viralforge/powerauth-server/internal/domain"
	"github.com/viralforge/powerauth-server/internal/ports"
	"gorm.io/gorm"
)

type ApplicationVersionRepository struct {
	db *gorm.DB
}

func NewApplicationVersionRepository(db *gorm.DB) *ApplicationVersionRepository {
	return &ApplicationVersionRepository{db: db}
}

func (r *ApplicationVersionRepository) GetByApplicationKey(ctx context.Context, applicationKey []byte) (*domain.ApplicationVersion, error) {
	var model applicationVersionModel
	if err := r.db.WithContext(ctx).Where("application_key = ?", applicationKey).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return toDomainApplicationVersion(model), nil
}

var _ ports.ApplicationVersionRepository = (*ApplicationVersionRepository)(nil)
