package repository

import (
	"context"
	"time"

	"storefront/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *model.Order) error
	CreateOrderItems(ctx context.Context, tx *gorm.DB, items []*model.OrderItem) error
	CreateAppliedDiscounts(ctx context.Context, tx *gorm.DB, discounts []*model.AppliedDiscount) error
	SetPaymentArtifact(ctx context.Context, tx *gorm.DB, orderID uint, reference, token, url string) error

	FindByID(ctx context.Context, orderID uint) (*model.Order, error)
	// LockByID reads the order with its items under a row lock.
	LockByID(ctx context.Context, tx *gorm.DB, orderID uint) (*model.Order, error)
	FindByGatewayReference(ctx context.Context, reference string) (*model.Order, error)
	FindOverduePending(ctx context.Context, now time.Time, limit int) ([]*model.Order, error)
	FindAppliedDiscount(ctx context.Context, tx *gorm.DB, orderID uint, kind model.DiscountKind) (*model.AppliedDiscount, error)

	// TransitionPayment moves the payment status only while it still equals
	// from; false means another writer got there first.
	TransitionPayment(ctx context.Context, tx *gorm.DB, orderID uint, from, to model.PaymentStatus, fields map[string]interface{}) (bool, error)
	// AdvanceOrderStatus moves a PAID order from one fulfilment step to the next.
	AdvanceOrderStatus(ctx context.Context, tx *gorm.DB, orderID uint, from, to model.OrderStatus) (bool, error)
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

func (r *orderRepoImpl) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return tx.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *orderRepoImpl) CreateOrderItems(ctx context.Context, tx *gorm.DB, items []*model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&items).Error
}

func (r *orderRepoImpl) CreateAppliedDiscounts(ctx context.Context, tx *gorm.DB, discounts []*model.AppliedDiscount) error {
	if len(discounts) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&discounts).Error
}

func (r *orderRepoImpl) SetPaymentArtifact(ctx context.Context, tx *gorm.DB, orderID uint, reference, token, url string) error {
	return tx.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"gateway_reference": reference,
			"payment_token":     token,
			"payment_url":       url,
			"updated_at":        time.Now(),
		}).Error
}

func (r *orderRepoImpl) FindByID(ctx context.Context, orderID uint) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("AppliedDiscounts").
		Where("id = ?", orderID).
		First(&order).Error

	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) LockByID(ctx context.Context, tx *gorm.DB, orderID uint) (*model.Order, error) {
	var order model.Order
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}

	err = tx.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id").
		Find(&order.Items).Error
	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) FindByGatewayReference(ctx context.Context, reference string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("gateway_reference = ?", reference).
		First(&order).Error

	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) FindOverduePending(ctx context.Context, now time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("payment_status = ?", model.PaymentPending).
		Where("payment_due_date IS NOT NULL AND payment_due_date < ?", now).
		Order("id").
		Limit(limit).
		Find(&orders).Error

	if err != nil {
		return nil, err
	}

	return orders, nil
}

func (r *orderRepoImpl) FindAppliedDiscount(ctx context.Context, tx *gorm.DB, orderID uint, kind model.DiscountKind) (*model.AppliedDiscount, error) {
	var applied model.AppliedDiscount
	err := tx.WithContext(ctx).
		Where("order_id = ? AND kind = ?", orderID, kind).
		First(&applied).Error

	if err != nil {
		return nil, err
	}

	return &applied, nil
}

func (r *orderRepoImpl) TransitionPayment(ctx context.Context, tx *gorm.DB, orderID uint, from, to model.PaymentStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"payment_status": to,
		"updated_at":     time.Now(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	result := tx.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND payment_status = ?", orderID, from).
		Updates(updates)

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

func (r *orderRepoImpl) AdvanceOrderStatus(ctx context.Context, tx *gorm.DB, orderID uint, from, to model.OrderStatus) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.Order{}).
		Where(`
			id = ?
			AND order_status = ?
			AND payment_status = ?
		`,
			orderID,
			from,
			model.PaymentPaid,
		).
		Updates(map[string]interface{}{
			"order_status": to,
			"updated_at":   time.Now(),
		})

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}
