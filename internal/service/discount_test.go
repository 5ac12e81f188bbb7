package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/dto"
	"storefront/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDiscount_SaleOverlapIsConflict(t *testing.T) {
	env := newTestEnv(t)
	day := 24 * time.Hour
	start := env.clock

	first, err := env.createSale(t, "Ramadan", 10, start, start.Add(7*day), 1, 2)
	require.NoError(t, err)

	_, err = env.createSale(t, "Payday", 20, start.Add(3*day), start.Add(10*day), 2, 3)
	require.Error(t, err)
	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperror.KindConflict, appErr.Kind)
	assert.Equal(t, first.ID, appErr.Details["discount_id"])
	assert.Equal(t, []uint{2}, appErr.Details["product_ids"])

	// touching windows share an instant
	_, err = env.createSale(t, "Edge", 5, start.Add(7*day), start.Add(8*day), 1)
	assert.True(t, apperror.Is(err, apperror.KindConflict))

	_, err = env.createSale(t, "Later", 5, start.Add(7*day+time.Second), start.Add(9*day), 1)
	assert.NoError(t, err)

	_, err = env.createSale(t, "Other products", 5, start, start.Add(day), 3)
	assert.NoError(t, err)
}

func TestUpdateDiscount_ExcludesItselfFromOverlap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sale, err := env.createSale(t, "Flash", 10, env.clock, env.clock.Add(time.Hour), 1)
	require.NoError(t, err)

	active := false
	updated, err := env.discounts.UpdateDiscount(ctx, sale.ID, &dto.DiscountRequest{
		Name:       "Flash extended",
		Kind:       model.DiscountSale,
		ValueType:  model.ValuePercentage,
		Value:      decimal.NewFromInt(15),
		StartDate:  env.clock,
		EndDate:    env.clock.Add(2 * time.Hour),
		IsActive:   &active,
		ProductIDs: []uint{1, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "Flash extended", updated.Name)
	assert.False(t, updated.IsActive)
	assert.ElementsMatch(t, []uint{1, 2}, updated.ProductIDs())

	_, err = env.discounts.UpdateDiscount(ctx, 999, &dto.DiscountRequest{
		Name: "x", Kind: model.DiscountSale, ValueType: model.ValueFixed, Value: decimal.NewFromInt(1),
		StartDate: env.clock, EndDate: env.clock.Add(time.Hour), ProductIDs: []uint{1},
	})
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestInactiveSaleDoesNotBlockOrPrice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	off := false

	_, err := env.discounts.CreateDiscount(ctx, &dto.DiscountRequest{
		Name: "Paused", Kind: model.DiscountSale, ValueType: model.ValuePercentage, Value: decimal.NewFromInt(50),
		StartDate: env.clock.Add(-time.Hour), EndDate: env.clock.Add(time.Hour), IsActive: &off, ProductIDs: []uint{1},
	})
	require.NoError(t, err)

	_, err = env.createSale(t, "Live", 10, env.clock.Add(-time.Hour), env.clock.Add(time.Hour), 1)
	require.NoError(t, err)

	order := env.createOrder(t, 7, orderRequest(fakeMethodID, "", dto.CartItem{ProductID: 1, Quantity: 1}))
	assert.Equal(t, int64(15000), order.SaleDiscountAmount)
}

func TestCreateDiscount_DuplicateVoucherCode(t *testing.T) {
	env := newTestEnv(t)
	env.createVoucher(t, "HEMAT", 10, nil, 1)

	_, err := env.discounts.CreateDiscount(context.Background(), &dto.DiscountRequest{
		Name: "Again", Kind: model.DiscountVoucher, Code: " hemat ", ValueType: model.ValueFixed,
		Value: decimal.NewFromInt(5000), StartDate: env.clock, EndDate: env.clock.Add(time.Hour), ProductIDs: []uint{2},
	})
	assert.True(t, apperror.Is(err, apperror.KindConflict))
}

func TestCreateDiscount_Validation(t *testing.T) {
	env := newTestEnv(t)
	base := func() *dto.DiscountRequest {
		return &dto.DiscountRequest{
			Name: "Promo", Kind: model.DiscountVoucher, Code: "PROMO", ValueType: model.ValuePercentage,
			Value: decimal.NewFromInt(10), StartDate: env.clock, EndDate: env.clock.Add(time.Hour), ProductIDs: []uint{1},
		}
	}
	cases := map[string]func(r *dto.DiscountRequest){
		"no name":          func(r *dto.DiscountRequest) { r.Name = " " },
		"bad kind":         func(r *dto.DiscountRequest) { r.Kind = "BUNDLE" },
		"bad value type":   func(r *dto.DiscountRequest) { r.ValueType = "RATIO" },
		"zero value":       func(r *dto.DiscountRequest) { r.Value = decimal.Zero },
		"over 100 percent": func(r *dto.DiscountRequest) { r.Value = decimal.NewFromInt(101) },
		"window reversed":  func(r *dto.DiscountRequest) { r.EndDate = r.StartDate.Add(-time.Minute) },
		"voucher no code":  func(r *dto.DiscountRequest) { r.Code = "" },
		"no products":      func(r *dto.DiscountRequest) { r.ProductIDs = nil },
		"unknown product":  func(r *dto.DiscountRequest) { r.ProductIDs = []uint{1, 404} },
		"zero per user":    func(r *dto.DiscountRequest) { r.MaxUsesPerUser = intPtr(0) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := base()
			mutate(req)
			_, err := env.discounts.CreateDiscount(context.Background(), req)
			require.Error(t, err)
			assert.True(t, apperror.Is(err, apperror.KindValidation), err.Error())
		})
	}
}

func TestCreateDiscount_SaleDropsCode(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.discounts.CreateDiscount(context.Background(), &dto.DiscountRequest{
		Name: "Sale", Kind: model.DiscountSale, Code: "IGNORED", ValueType: model.ValueFixed,
		Value: decimal.NewFromInt(1000), StartDate: env.clock, EndDate: env.clock.Add(time.Hour), ProductIDs: []uint{3},
	})
	require.NoError(t, err)
	assert.Nil(t, d.Code)
}

func TestValidateVoucher(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	v := env.createVoucher(t, "KAOS10", 10, nil, 2)

	resp, err := env.discounts.ValidateVoucher(ctx, 7, &dto.ValidateVoucherRequest{
		Code: "kaos10",
		CartItems: []dto.CartItem{
			{ProductID: 1, Quantity: 1},
			{ProductID: 2, Quantity: 2},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, v.ID, resp.DiscountID)
	assert.Equal(t, "KAOS10", resp.Code)
	assert.Equal(t, int64(15000), resp.DiscountAmount)
	assert.Equal(t, []uint{2}, resp.ApplicableProducts)

	_, err = env.discounts.ValidateVoucher(ctx, 7, &dto.ValidateVoucherRequest{
		Code: "NOPE", CartItems: []dto.CartItem{{ProductID: 2, Quantity: 1}},
	})
	assert.True(t, apperror.Is(err, apperror.KindInvalidVoucher))

	env.clock = env.clock.Add(100 * time.Hour)
	_, err = env.discounts.ValidateVoucher(ctx, 7, &dto.ValidateVoucherRequest{
		Code: "KAOS10", CartItems: []dto.CartItem{{ProductID: 2, Quantity: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}
