package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/model"
	"storefront/internal/repository"

	"gorm.io/gorm"
)

type VoucherLedger interface {
	// CommitVoucherUsage records that the order's voucher was consumed and bumps
	// its uses_count, at most once per order. With a nil tx it opens its own.
	// It reports whether anything was written.
	CommitVoucherUsage(ctx context.Context, tx *gorm.DB, orderID, userID uint) (bool, error)
}

type voucherLedgerImpl struct {
	db               *gorm.DB
	orderRepo        repository.OrderRepository
	discountRepo     repository.DiscountRepository
	voucherUsageRepo repository.VoucherUsageRepository
}

func NewVoucherLedger(
	db *gorm.DB,
	orderRepo repository.OrderRepository,
	discountRepo repository.DiscountRepository,
	voucherUsageRepo repository.VoucherUsageRepository,
) VoucherLedger {
	return &voucherLedgerImpl{
		db:               db,
		orderRepo:        orderRepo,
		discountRepo:     discountRepo,
		voucherUsageRepo: voucherUsageRepo,
	}
}

func (l *voucherLedgerImpl) CommitVoucherUsage(ctx context.Context, tx *gorm.DB, orderID, userID uint) (bool, error) {
	if tx == nil {
		var committed bool
		err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			committed, err = l.commit(ctx, tx, orderID, userID)
			return err
		})
		return committed, err
	}
	return l.commit(ctx, tx, orderID, userID)
}

func (l *voucherLedgerImpl) commit(ctx context.Context, tx *gorm.DB, orderID, userID uint) (bool, error) {
	exists, err := l.voucherUsageRepo.ExistsForOrder(ctx, tx, orderID)
	if err != nil {
		return false, fmt.Errorf("check voucher usage: %w", err)
	}
	if exists {
		return false, nil
	}

	applied, err := l.orderRepo.FindAppliedDiscount(ctx, tx, orderID, model.DiscountVoucher)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find applied voucher: %w", err)
	}

	// the unique order_id index settles a race the existence check lost
	inserted, err := l.voucherUsageRepo.InsertIfAbsent(ctx, tx, &model.VoucherUsage{
		UserID:     userID,
		DiscountID: applied.DiscountID,
		OrderID:    orderID,
	})
	if err != nil {
		return false, fmt.Errorf("insert voucher usage: %w", err)
	}
	if !inserted {
		return false, nil
	}

	if err := l.discountRepo.IncrementUses(ctx, tx, applied.DiscountID); err != nil {
		return false, fmt.Errorf("increment voucher uses: %w", err)
	}
	return true, nil
}
