package repository

import (
	"context"

	"storefront/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ShippingRateRepository interface {
	Seed(ctx context.Context) error
	Get(ctx context.Context, rateID uint) (*model.ShippingRate, error)
}

type shippingRateRepoImpl struct {
	db *gorm.DB
}

func NewShippingRateRepository(db *gorm.DB) ShippingRateRepository {
	return &shippingRateRepoImpl{
		db: db,
	}
}

func (r *shippingRateRepoImpl) Seed(ctx context.Context) error {
	rates := []model.ShippingRate{
		{ID: 1, Courier: "JNE", Service: "REG", Cost: 15000, IsActive: true},
		{ID: 2, Courier: "JNE", Service: "YES", Cost: 30000, IsActive: true},
		{ID: 3, Courier: "SiCepat", Service: "HALU", Cost: 10000, IsActive: true},
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rates).Error
}

func (r *shippingRateRepoImpl) Get(ctx context.Context, rateID uint) (*model.ShippingRate, error) {
	var rate model.ShippingRate
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", rateID, true).
		First(&rate).Error
	if err != nil {
		return nil, err
	}

	return &rate, nil
}
