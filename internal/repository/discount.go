package repository

import (
	"context"
	"time"

	"storefront/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DiscountRepository interface {
	Create(ctx context.Context, tx *gorm.DB, discount *model.Discount) error
	Update(ctx context.Context, tx *gorm.DB, discount *model.Discount) error
	ReplaceProducts(ctx context.Context, tx *gorm.DB, discountID uint, productIDs []uint) error

	FindByID(ctx context.Context, tx *gorm.DB, discountID uint) (*model.Discount, error)
	FindByCode(ctx context.Context, code string) (*model.Discount, error)
	// FindActiveSales returns SALE discounts live at now enrolling any of productIDs.
	FindActiveSales(ctx context.Context, tx *gorm.DB, productIDs []uint, now time.Time) ([]*model.Discount, error)
	// FindOverlappingSales returns active SALE discounts other than excludeID whose
	// window meets [start, end] and that enroll any of productIDs.
	FindOverlappingSales(ctx context.Context, tx *gorm.DB, productIDs []uint, start, end time.Time, excludeID uint) ([]*model.Discount, error)
	CodeTaken(ctx context.Context, tx *gorm.DB, code string, excludeID uint) (bool, error)

	IncrementUses(ctx context.Context, tx *gorm.DB, discountID uint) error
}

type discountRepoImpl struct {
	db *gorm.DB
}

func NewDiscountRepository(db *gorm.DB) DiscountRepository {
	return &discountRepoImpl{
		db: db,
	}
}

func (r *discountRepoImpl) Create(ctx context.Context, tx *gorm.DB, discount *model.Discount) error {
	return tx.WithContext(ctx).Omit("Products").Create(discount).Error
}

func (r *discountRepoImpl) Update(ctx context.Context, tx *gorm.DB, discount *model.Discount) error {
	result := tx.WithContext(ctx).Model(&model.Discount{}).
		Where("id = ?", discount.ID).
		Updates(map[string]interface{}{
			"name":              discount.Name,
			"kind":              discount.Kind,
			"code":              discount.Code,
			"value_type":        discount.ValueType,
			"value":             discount.Value,
			"max_discount":      discount.MaxDiscount,
			"start_date":        discount.StartDate,
			"end_date":          discount.EndDate,
			"is_active":         discount.IsActive,
			"max_uses":          discount.MaxUses,
			"max_uses_per_user": discount.MaxUsesPerUser,
			"updated_at":        time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *discountRepoImpl) ReplaceProducts(ctx context.Context, tx *gorm.DB, discountID uint, productIDs []uint) error {
	err := tx.WithContext(ctx).
		Where("discount_id = ?", discountID).
		Delete(&model.DiscountProduct{}).Error
	if err != nil {
		return err
	}

	if len(productIDs) == 0 {
		return nil
	}
	rows := make([]model.DiscountProduct, 0, len(productIDs))
	for _, pid := range productIDs {
		rows = append(rows, model.DiscountProduct{DiscountID: discountID, ProductID: pid})
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (r *discountRepoImpl) FindByID(ctx context.Context, tx *gorm.DB, discountID uint) (*model.Discount, error) {
	if tx == nil {
		tx = r.db
	}
	var discount model.Discount
	err := tx.WithContext(ctx).
		Preload("Products").
		Where("id = ?", discountID).
		First(&discount).Error

	if err != nil {
		return nil, err
	}

	return &discount, nil
}

func (r *discountRepoImpl) FindByCode(ctx context.Context, code string) (*model.Discount, error) {
	var discount model.Discount
	err := r.db.WithContext(ctx).
		Preload("Products").
		Where("code = ? AND kind = ?", code, model.DiscountVoucher).
		First(&discount).Error

	if err != nil {
		return nil, err
	}

	return &discount, nil
}

func (r *discountRepoImpl) enrolling(tx *gorm.DB, productIDs []uint) *gorm.DB {
	return tx.Model(&model.DiscountProduct{}).
		Select("discount_id").
		Where("product_id IN ?", productIDs)
}

func (r *discountRepoImpl) FindActiveSales(ctx context.Context, tx *gorm.DB, productIDs []uint, now time.Time) ([]*model.Discount, error) {
	if tx == nil {
		tx = r.db
	}
	var discounts []*model.Discount
	err := tx.WithContext(ctx).
		Preload("Products").
		Where("kind = ? AND is_active = ?", model.DiscountSale, true).
		Where("start_date <= ? AND end_date >= ?", now, now).
		Where("id IN (?)", r.enrolling(tx.Session(&gorm.Session{NewDB: true}), productIDs)).
		Order("id").
		Find(&discounts).Error

	if err != nil {
		return nil, err
	}

	return discounts, nil
}

func (r *discountRepoImpl) FindOverlappingSales(ctx context.Context, tx *gorm.DB, productIDs []uint, start, end time.Time, excludeID uint) ([]*model.Discount, error) {
	if tx == nil {
		tx = r.db
	}
	var discounts []*model.Discount
	err := tx.WithContext(ctx).
		Preload("Products").
		Where("kind = ? AND is_active = ?", model.DiscountSale, true).
		Where("id <> ?", excludeID).
		Where("start_date <= ? AND end_date >= ?", end, start).
		Where("id IN (?)", r.enrolling(tx.Session(&gorm.Session{NewDB: true}), productIDs)).
		Find(&discounts).Error

	if err != nil {
		return nil, err
	}

	return discounts, nil
}

func (r *discountRepoImpl) CodeTaken(ctx context.Context, tx *gorm.DB, code string, excludeID uint) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).Model(&model.Discount{}).
		Where("code = ? AND id <> ?", code, excludeID).
		Count(&count).Error

	return count > 0, err
}

func (r *discountRepoImpl) IncrementUses(ctx context.Context, tx *gorm.DB, discountID uint) error {
	result := tx.WithContext(ctx).Model(&model.Discount{}).
		Where("id = ?", discountID).
		UpdateColumn("uses_count", gorm.Expr("uses_count + 1"))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}
