package repository

import (
	"context"

	"storefront/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VoucherUsageRepository interface {
	ExistsForOrder(ctx context.Context, tx *gorm.DB, orderID uint) (bool, error)
	CountByUser(ctx context.Context, userID, discountID uint) (int64, error)
	// InsertIfAbsent relies on the unique order_id index; false means a row for
	// the order already existed.
	InsertIfAbsent(ctx context.Context, tx *gorm.DB, usage *model.VoucherUsage) (bool, error)
}

type voucherUsageRepoImpl struct {
	db *gorm.DB
}

func NewVoucherUsageRepository(db *gorm.DB) VoucherUsageRepository {
	return &voucherUsageRepoImpl{
		db: db,
	}
}

func (r *voucherUsageRepoImpl) ExistsForOrder(ctx context.Context, tx *gorm.DB, orderID uint) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&model.VoucherUsage{}).
		Where("order_id = ?", orderID).
		Count(&count).Error

	return count > 0, err
}

func (r *voucherUsageRepoImpl) CountByUser(ctx context.Context, userID, discountID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.VoucherUsage{}).
		Where("user_id = ? AND discount_id = ?", userID, discountID).
		Count(&count).Error

	return count, err
}

func (r *voucherUsageRepoImpl) InsertIfAbsent(ctx context.Context, tx *gorm.DB, usage *model.VoucherUsage) (bool, error) {
	result := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoNothing: true,
	}).Create(usage)

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}
