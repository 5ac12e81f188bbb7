package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/dto"
	"storefront/internal/gateway"
	"storefront/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func midtransBody(t *testing.T, orderRef, status, gross, serverKey string) []byte {
	t.Helper()
	n := model.MidtransNotification{
		TransactionStatus: status,
		OrderID:           orderRef,
		GrossAmount:       gross,
		PaymentType:       "bank_transfer",
		StatusCode:        "200",
		TransactionID:     "tx-" + orderRef,
	}
	n.SignatureKey = gateway.MidtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	body, err := json.Marshal(n)
	require.NoError(t, err)
	return body
}

func (e *testEnv) deliverMidtrans(body []byte) (*Outcome, error) {
	return e.recon.HandleNotification(context.Background(), model.ProviderMidtrans, &gateway.InboundNotification{Body: body})
}

func TestReconcile_Order501SettlementThenReplay(t *testing.T) {
	env := newTestEnv(t)
	// the next order takes id 501
	require.NoError(t, env.db.Create(&model.Order{
		ID: 500, UserID: 99, ShippingAddress: "-", Currency: "IDR",
		PaymentStatus: model.PaymentCancelled, OrderStatus: model.OrderCancelled, PaymentMethodID: fakeMethodID,
	}).Error)
	voucher := env.createVoucher(t, "HEMAT5", 5, intPtr(1), 1)

	order := env.createOrder(t, 7, orderRequest(midtransMethodID, "HEMAT5", dto.CartItem{ProductID: 1, Quantity: 2}))
	require.Equal(t, uint(501), order.ID)
	assert.Equal(t, int64(300000), order.Subtotal)
	assert.Equal(t, int64(15000), order.VoucherDiscountAmount)
	assert.Equal(t, int64(15000), order.ShippingCost)
	assert.Equal(t, int64(300000), order.Total)

	body := midtransBody(t, "ORDER-501", "settlement", "300000.00", midtransServerKey)

	outcome, err := env.deliverMidtrans(body)
	require.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.Equal(t, "payment status updated to PAID", outcome.Message)

	got := env.order(t, 501)
	assert.Equal(t, model.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, model.OrderProcessing, got.OrderStatus)
	require.NotNil(t, got.PaidAt)
	assert.EqualValues(t, 1, env.voucherUsages(t, 501))
	assert.Equal(t, 1, env.usesCount(t, voucher.ID))

	replay, err := env.deliverMidtrans(body)
	require.NoError(t, err)
	assert.False(t, replay.Applied)
	assert.Equal(t, "no action taken: order already PAID", replay.Message)
	assert.EqualValues(t, 1, env.voucherUsages(t, 501))
	assert.Equal(t, 1, env.usesCount(t, voucher.ID))
	assert.Equal(t, 48, env.stock(t, 1))

	env.dispatcher.Wait()
	assert.ElementsMatch(t, []string{model.EventTypeOrderCreated, model.EventTypeOrderPaid}, env.notes.types())
}

func TestReconcile_TamperedGrossAmountIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, 7, orderRequest(midtransMethodID, "", dto.CartItem{ProductID: 1, Quantity: 1}))
	ref := gateway.FormatOrderRef(order.ID)

	var n model.MidtransNotification
	require.NoError(t, json.Unmarshal(midtransBody(t, ref, "settlement", "165000.00", midtransServerKey), &n))
	n.GrossAmount = "1.00"
	tampered, err := json.Marshal(n)
	require.NoError(t, err)

	_, err = env.deliverMidtrans(tampered)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindForbidden))

	got := env.order(t, order.ID)
	assert.Equal(t, model.PaymentPending, got.PaymentStatus)
	assert.Equal(t, model.OrderPending, got.OrderStatus)
	assert.Equal(t, 49, env.stock(t, 1))
}

func TestReconcile_WrongServerKeyIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, 7, orderRequest(midtransMethodID, "", dto.CartItem{ProductID: 1, Quantity: 1}))

	_, err := env.deliverMidtrans(midtransBody(t, gateway.FormatOrderRef(order.ID), "cancel", "165000.00", "someone-else"))
	assert.True(t, apperror.Is(err, apperror.KindForbidden))
	assert.Equal(t, model.PaymentPending, env.order(t, order.ID).PaymentStatus)
}

func TestReconcile_MissingServerKeyIsConfigurationError(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, 7, orderRequest(midtransMethodID, "", dto.CartItem{ProductID: 1, Quantity: 1}))
	require.NoError(t, env.db.Model(&model.PaymentMethod{}).Where("id = ?", midtransMethodID).
		Update("server_key", "").Error)

	_, err := env.deliverMidtrans(midtransBody(t, gateway.FormatOrderRef(order.ID), "settlement", "165000.00", midtransServerKey))
	assert.True(t, apperror.Is(err, apperror.KindConfiguration))
	assert.Equal(t, model.PaymentPending, env.order(t, order.ID).PaymentStatus)
}

func TestReconcile_UnresolvableReferencesAreAcknowledged(t *testing.T) {
	env := newTestEnv(t)

	outcome, err := env.deliverMidtrans(midtransBody(t, "INV-42", "settlement", "1.00", midtransServerKey))
	require.NoError(t, err)
	assert.Equal(t, "order reference not recognised", outcome.Message)

	outcome, err = env.deliverMidtrans(midtransBody(t, "ORDER-4242", "settlement", "1.00", midtransServerKey))
	require.NoError(t, err)
	assert.Equal(t, "order not found", outcome.Message)
}

func TestReconcile_UnreadableBodyIsValidationError(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.deliverMidtrans([]byte("not json"))
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestReconcile_ProviderMustMatchPaymentMethod(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, 7, orderRequest(fakeMethodID, "", dto.CartItem{ProductID: 1, Quantity: 1}))

	_, err := env.deliverMidtrans(midtransBody(t, gateway.FormatOrderRef(order.ID), "settlement", "165000.00", midtransServerKey))
	assert.True(t, apperror.Is(err, apperror.KindForbidden))
	assert.Equal(t, model.PaymentPending, env.order(t, order.ID).PaymentStatus)
}

func TestReconcile_VerificationFailureDoesNotMutate(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, 7, orderRequest(fakeMethodID, "", dto.CartItem{ProductID: 1, Quantity: 3}))
	env.fake.verifyErr = apperror.Forbidden("bad signature")

	_, err := env.deliverFake(t, "d-1", order.ID, model.EventCancelled)
	assert.True(t, apperror.Is(err, apperror.KindForbidden))
	assert.Equal(t, model.PaymentPending, env.order(t, order.ID).PaymentStatus)
	assert.Equal(t, 47, env.stock(t, 1))
}

func TestReconcile_CancelRestoresStockExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	before := map[uint]int{1: env.stock(t, 1), 2: env.stock(t, 2)}

	order := env.createOrder(t, 7, orderRequest(fakeMethodID, "",
		dto.CartItem{ProductID: 1, Quantity: 4},
		dto.CartItem{ProductID: 2, Quantity: 6},
	))
	assert.Equal(t, before[1]-4, env.stock(t, 1))
	assert.Equal(t, before[2]-6, env.stock(t, 2))

	outcome, err := env.deliverFake(t, "cancel-1", order.ID, model.EventCancelled)
	require.NoError(t, err)
	assert.True(t, outcome.Applied)

	// a second, distinct delivery of a failure status
	outcome, err = env.deliverFake(t, "expire-1", order.ID, model.EventExpired)
	require.NoError(t, err)
	assert.False(t, outcome.Applied)

	assert.Equal(t, before[1], env.stock(t, 1))
	assert.Equal(t, before[2], env.stock(t, 2))

	got := env.order(t, order.ID)
	assert.Equal(t, model.PaymentCancelled, got.PaymentStatus)
	assert.Equal(t, model.OrderCancelled, got.OrderStatus)
}

func TestReconcile_RestoreSkipsDeletedProducts(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, 7, orderRequest(fakeMethodID, "",
		dto.CartItem{ProductID: 1, Quantity: 1},
		dto.CartItem{ProductID: 2, Quantity: 1},
	))
	require.NoError(t, env.db.Model(&model.OrderItem{}).
		Where("order_id = ? AND product_id = ?", order.ID, 2).
		Update("product_id", nil).Error)

	_, err := env.deliverFake(t, "c", order.ID, model.EventCancelled)
	require.NoError(t, err)

	assert.Equal(t, 50, env.stock(t, 1))
	assert.Equal(t, 99, env.stock(t, 2))
}

func TestReconcile_RefundMovesToRefund(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, 7, orderRequest(fakeMethodID, "", dto.CartItem{ProductID: 3, Quantity: 2}))

	outcome, err := env.deliverFake(t, "r", order.ID, model.EventRefunded)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefund, outcome.Status)
	assert.Equal(t, 30, env.stock(t, 3))

	env.dispatcher.Wait()
	assert.Contains(t, env.notes.types(), model.EventTypeOrderRefunded)
}

func TestReconcile_PendingAndUnhandledAreAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, 7, orderRequest(fakeMethodID, "", dto.CartItem{ProductID: 1, Quantity: 1}))

	outcome, err := env.deliverFake(t, "p-1", order.ID, model.EventPending)
	require.NoError(t, err)
	assert.Equal(t, "no action taken: payment still pending", outcome.Message)

	outcome, err = env.deliverFake(t, "u-1", order.ID, model.EventUnhandled)
	require.NoError(t, err)
	assert.Equal(t, "no action taken: unhandled payment status", outcome.Message)

	assert.Equal(t, model.PaymentPending, env.order(t, order.ID).PaymentStatus)
}

func TestReconcile_DuplicateDeliveryIsDropped(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, 7, orderRequest(fakeMethodID, "", dto.CartItem{ProductID: 1, Quantity: 1}))

	_, err := env.deliverFake(t, "same", order.ID, model.EventPending)
	require.NoError(t, err)

	outcome, err := env.deliverFake(t, "same", order.ID, model.EventPending)
	require.NoError(t, err)
	assert.Equal(t, "duplicate delivery ignored", outcome.Message)
}

func TestReconcile_DedupOutageFallsBackToDatabase(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, 7, orderRequest(fakeMethodID, "", dto.CartItem{ProductID: 1, Quantity: 1}))
	env.redis.Close()

	outcome, err := env.deliverFake(t, "paid", order.ID, model.EventPaid)
	require.NoError(t, err)
	assert.True(t, outcome.Applied)

	outcome, err = env.deliverFake(t, "paid", order.ID, model.EventPaid)
	require.NoError(t, err)
	assert.Equal(t, "no action taken: order already PAID", outcome.Message)
}

func TestReconcile_TerminalStatesAreImmutable(t *testing.T) {
	for _, first := range []model.PaymentEvent{model.EventPaid, model.EventCancelled, model.EventRefunded} {
		t.Run(string(first), func(t *testing.T) {
			env := newTestEnv(t)
			order := env.createOrder(t, 7, orderRequest(fakeMethodID, "", dto.CartItem{ProductID: 2, Quantity: 5}))

			outcome, err := env.deliverFake(t, "first", order.ID, first)
			require.NoError(t, err)
			require.True(t, outcome.Applied)
			settled := env.order(t, order.ID)
			stock := env.stock(t, 2)

			for i, ev := range model.PaymentEvents {
				outcome, err := env.deliverFake(t, "later-"+string(rune('a'+i)), order.ID, ev)
				require.NoError(t, err)
				assert.False(t, outcome.Applied, ev)

				got := env.order(t, order.ID)
				assert.Equal(t, settled.PaymentStatus, got.PaymentStatus, ev)
				assert.Equal(t, settled.OrderStatus, got.OrderStatus, ev)
				assert.Equal(t, stock, env.stock(t, 2), ev)
			}
		})
	}
}

func TestReconcile_ApplyIsCompareAndSet(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, 7, orderRequest(fakeMethodID, "", dto.CartItem{ProductID: 1, Quantity: 2}))
	ctx := context.Background()

	first, err := env.recon.apply(ctx, order.ID, model.EventCancelled)
	require.NoError(t, err)
	second, err := env.recon.apply(ctx, order.ID, model.EventCancelled)
	require.NoError(t, err)

	assert.True(t, first.Applied)
	assert.False(t, second.Applied)
	assert.Equal(t, 50, env.stock(t, 1))
}

func TestReconcile_RecordsAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, 7, orderRequest(fakeMethodID, "", dto.CartItem{ProductID: 1, Quantity: 1}))

	_, err := env.deliverFake(t, "a", order.ID, model.EventPaid)
	require.NoError(t, err)
	_, err = env.deliverFake(t, "b", order.ID, model.EventPaid)
	require.NoError(t, err)

	var events []model.WebhookEvent
	require.NoError(t, env.db.Order("id").Find(&events).Error)
	require.Len(t, events, 2)
	assert.Equal(t, "FAKE", events[0].Provider)
	assert.Equal(t, gateway.FormatOrderRef(order.ID), events[0].OrderRef)
	assert.Equal(t, "payment status updated to PAID", events[0].Outcome)
	assert.Equal(t, "no action taken: order already PAID", events[1].Outcome)

	count, err := env.recon.webhookEventRepo.CountByOrderRef(context.Background(), "FAKE", gateway.FormatOrderRef(order.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = env.recon.webhookEventRepo.CountByOrderRef(context.Background(), string(model.ProviderMidtrans), gateway.FormatOrderRef(order.ID))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReconcile_VoucherPerUserCapAfterPaid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVoucher(t, "SEKALI", 10, intPtr(1), 1)
	validate := &dto.ValidateVoucherRequest{Code: "SEKALI", CartItems: []dto.CartItem{{ProductID: 1, Quantity: 1}}}

	resp, err := env.discounts.ValidateVoucher(ctx, 7, validate)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), resp.DiscountAmount)

	order := env.createOrder(t, 7, orderRequest(fakeMethodID, "SEKALI", dto.CartItem{ProductID: 1, Quantity: 1}))

	// not consumed until the payment is confirmed
	_, err = env.discounts.ValidateVoucher(ctx, 7, validate)
	require.NoError(t, err)

	_, err = env.deliverFake(t, "paid", order.ID, model.EventPaid)
	require.NoError(t, err)

	_, err = env.discounts.ValidateVoucher(ctx, 7, validate)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindInvalidVoucher))
	assert.Contains(t, err.Error(), "already used")

	_, err = env.discounts.ValidateVoucher(ctx, 8, validate)
	assert.NoError(t, err, "another user is unaffected")
}

func TestReconcile_CancelledVoucherOrderIsNotConsumed(t *testing.T) {
	env := newTestEnv(t)
	voucher := env.createVoucher(t, "BATAL", 10, intPtr(1), 1)
	order := env.createOrder(t, 7, orderRequest(fakeMethodID, "BATAL", dto.CartItem{ProductID: 1, Quantity: 1}))

	_, err := env.deliverFake(t, "c", order.ID, model.EventCancelled)
	require.NoError(t, err)

	assert.Zero(t, env.voucherUsages(t, order.ID))
	assert.Zero(t, env.usesCount(t, voucher.ID))
}

func TestExpireOverdueOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	overdue := env.createOrder(t, 7, orderRequest(fakeMethodID, "", dto.CartItem{ProductID: 1, Quantity: 2}))
	paid := env.createOrder(t, 7, orderRequest(fakeMethodID, "", dto.CartItem{ProductID: 1, Quantity: 1}))
	_, err := env.deliverFake(t, "paid", paid.ID, model.EventPaid)
	require.NoError(t, err)

	env.clock = env.clock.Add(2 * time.Hour)
	fresh := env.createOrder(t, 7, orderRequest(fakeMethodID, "", dto.CartItem{ProductID: 1, Quantity: 3}))

	env.clock = env.clock.Add(23 * time.Hour)
	n, err := env.recon.ExpireOverdueOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, model.PaymentCancelled, env.order(t, overdue.ID).PaymentStatus)
	assert.Equal(t, model.PaymentPaid, env.order(t, paid.ID).PaymentStatus)
	assert.Equal(t, model.PaymentPending, env.order(t, fresh.ID).PaymentStatus)
	assert.Equal(t, 50-1-3, env.stock(t, 1))

	n, err = env.recon.ExpireOverdueOrders(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReconcile_ZeroValueVoucherStillConsumesUse(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.createSale(t, "Gratis", 100, env.clock.Add(-time.Hour), env.clock.Add(time.Hour), 3)
	require.NoError(t, err)
	voucher := env.createVoucher(t, "NOL", 10, intPtr(1), 3)

	order := env.createOrder(t, 7, orderRequest(fakeMethodID, "NOL", dto.CartItem{ProductID: 3, Quantity: 1}))
	assert.Zero(t, order.VoucherDiscountAmount)

	_, err = env.deliverFake(t, "paid", order.ID, model.EventPaid)
	require.NoError(t, err)

	assert.Equal(t, int64(1), env.voucherUsages(t, order.ID))
	assert.Equal(t, 1, env.usesCount(t, voucher.ID))
}
