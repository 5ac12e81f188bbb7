package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/cache"
	"storefront/internal/client"
	"storefront/internal/config"
	"storefront/internal/dto"
	"storefront/internal/gateway"
	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	fakeProvider      model.PaymentProvider = "FAKE"
	fakeMethodID      uint                  = 1
	midtransMethodID  uint                  = 2
	midtransServerKey                       = "SB-Mid-server-test"
)

// fakeGateway accepts notifications shaped like fakeNotification and trusts
// them unless verifyErr is set.
type fakeGateway struct {
	createErr error
	verifyErr error

	mu      sync.Mutex
	created []uint
}

type fakeNotification struct {
	ID       string `json:"id"`
	OrderRef string `json:"order_ref"`
	Status   string `json:"status"`
}

func (g *fakeGateway) Code() model.PaymentProvider { return fakeProvider }

func (g *fakeGateway) ValidateConfig(pm *model.PaymentMethod) error {
	if pm.ServerKey == "" {
		return apperror.Configuration("payment method %d is missing server key", pm.ID)
	}
	return nil
}

func (g *fakeGateway) CreateTransaction(_ context.Context, _ *model.PaymentMethod, req *gateway.TransactionRequest) (*gateway.Transaction, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.mu.Lock()
	g.created = append(g.created, req.Order.ID)
	g.mu.Unlock()
	ref := gateway.FormatOrderRef(req.Order.ID)
	return &gateway.Transaction{Reference: ref, Token: "tok-" + ref, RedirectURL: "https://pay.test/" + ref}, nil
}

func (g *fakeGateway) ParseNotification(in *gateway.InboundNotification) (*gateway.Notification, error) {
	var body fakeNotification
	if err := json.Unmarshal(in.Body, &body); err != nil {
		return nil, apperror.Validation("unreadable fake notification: %v", err)
	}
	n := &gateway.Notification{
		Provider:    fakeProvider,
		OrderRef:    body.OrderRef,
		EventType:   body.Status,
		DeliveryKey: body.ID,
		Headers:     in.Headers,
		Body:        in.Body,
	}
	if id, err := gateway.ParseOrderRef(body.OrderRef); err == nil {
		n.OrderID = id
	}
	return n, nil
}

func (g *fakeGateway) VerifyNotification(context.Context, *model.PaymentMethod, *gateway.Notification) error {
	return g.verifyErr
}

func (g *fakeGateway) MapStatus(n *gateway.Notification) model.PaymentEvent {
	return model.PaymentEvent(n.EventType)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.OrderEvent
	err    error
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Notify(_ context.Context, event model.OrderEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.Type
	}
	return out
}

type testEnv struct {
	db         *gorm.DB
	clock      time.Time
	fake       *fakeGateway
	notes      *recordingNotifier
	dispatcher *Dispatcher
	redis      *miniredis.Miniredis

	discounts *discountServiceImpl
	orders    *orderServiceImpl
	recon     *reconciliationServiceImpl
	ledger    VoucherLedger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, client.Migrate(db))

	productRepo := repository.NewProductRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	discountRepo := repository.NewDiscountRepository(db)
	usageRepo := repository.NewVoucherUsageRepository(db)
	paymentMethodRepo := repository.NewPaymentMethodRepository(db)
	shippingRepo := repository.NewShippingRateRepository(db)
	webhookRepo := repository.NewWebhookEventRepository(db)

	require.NoError(t, productRepo.Seed(ctx))
	require.NoError(t, shippingRepo.Seed(ctx))
	require.NoError(t, paymentMethodRepo.Upsert(ctx, &model.PaymentMethod{
		ID: fakeMethodID, Name: "Fake", Code: fakeProvider, IsActive: true, ServerKey: "fake-key",
	}))
	require.NoError(t, paymentMethodRepo.Upsert(ctx, &model.PaymentMethod{
		ID: midtransMethodID, Name: "Midtrans", Code: model.ProviderMidtrans, Mode: model.ModeSandbox,
		IsActive: true, ServerKey: midtransServerKey,
	}))

	snap := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(model.MidtransSnapResponse{
			Token:       "snap-token",
			RedirectURL: "https://app.sandbox.midtrans.com/snap/v4/redirection/snap-token",
		})
	}))
	t.Cleanup(snap.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	env := &testEnv{
		db:    db,
		clock: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		fake:  &fakeGateway{},
		notes: &recordingNotifier{},
		redis: mr,
	}
	now := func() time.Time { return env.clock }

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.dispatcher = NewDispatcher(logger, time.Second, env.notes)
	registry := gateway.NewRegistry(
		env.fake,
		gateway.NewMidtrans(client.NewMidtransClient(), config.Midtrans{SandboxURL: snap.URL, ProductionURL: snap.URL}),
	)

	env.discounts = NewDiscountService(db, discountRepo, productRepo, usageRepo).(*discountServiceImpl)
	env.discounts.now = now

	env.orders = NewOrderService(db, config.Checkout{
		Currency:       "IDR",
		PaymentExpiry:  24 * time.Hour,
		GatewayTimeout: 5 * time.Second,
	}, logger, registry, env.discounts, env.dispatcher, productRepo, orderRepo, paymentMethodRepo, shippingRepo).(*orderServiceImpl)
	env.orders.now = now

	env.ledger = NewVoucherLedger(db, orderRepo, discountRepo, usageRepo)
	env.recon = NewReconciliationService(db, logger, registry,
		cache.NewRedisDeliveryGuard(rdb, time.Hour), env.ledger, env.dispatcher,
		productRepo, orderRepo, paymentMethodRepo, webhookRepo,
	).(*reconciliationServiceImpl)
	env.recon.now = now

	return env
}

func orderRequest(methodID uint, voucher string, items ...dto.CartItem) *dto.CreateOrderRequest {
	return &dto.CreateOrderRequest{
		CartItems: items,
		Shipping: dto.ShippingSelection{
			RecipientName:  "Budi",
			RecipientPhone: "08123456789",
			Address:        "Jl. Merdeka 1, Bandung",
			RateID:         1,
		},
		PaymentMethodID: methodID,
		VoucherCode:     voucher,
	}
}

func (e *testEnv) createOrder(t *testing.T, userID uint, req *dto.CreateOrderRequest) *model.Order {
	t.Helper()
	resp, err := e.orders.CreateOrder(context.Background(), userID, req)
	require.NoError(t, err)
	return resp.Order
}

func (e *testEnv) deliverFake(t *testing.T, deliveryID string, orderID uint, status model.PaymentEvent) (*Outcome, error) {
	t.Helper()
	return e.recon.HandleNotification(context.Background(), fakeProvider, &gateway.InboundNotification{
		Body: fakeBody(t, deliveryID, orderID, status),
	})
}

func fakeBody(t *testing.T, deliveryID string, orderID uint, status model.PaymentEvent) []byte {
	t.Helper()
	body, err := json.Marshal(fakeNotification{ID: deliveryID, OrderRef: gateway.FormatOrderRef(orderID), Status: string(status)})
	require.NoError(t, err)
	return body
}

func (e *testEnv) stock(t *testing.T, productID uint) int {
	t.Helper()
	var p model.Product
	require.NoError(t, e.db.First(&p, productID).Error)
	return p.Stock
}

func (e *testEnv) order(t *testing.T, orderID uint) *model.Order {
	t.Helper()
	var o model.Order
	require.NoError(t, e.db.First(&o, orderID).Error)
	return &o
}

func (e *testEnv) createVoucher(t *testing.T, code string, percent int64, maxPerUser *int, productIDs ...uint) *model.Discount {
	t.Helper()
	d, err := e.discounts.CreateDiscount(context.Background(), &dto.DiscountRequest{
		Name:           "Voucher " + code,
		Kind:           model.DiscountVoucher,
		Code:           code,
		ValueType:      model.ValuePercentage,
		Value:          decimal.NewFromInt(percent),
		StartDate:      e.clock.Add(-time.Hour),
		EndDate:        e.clock.Add(72 * time.Hour),
		MaxUsesPerUser: maxPerUser,
		ProductIDs:     productIDs,
	})
	require.NoError(t, err)
	return d
}

func (e *testEnv) createSale(t *testing.T, name string, percent int64, start, end time.Time, productIDs ...uint) (*model.Discount, error) {
	t.Helper()
	return e.discounts.CreateDiscount(context.Background(), &dto.DiscountRequest{
		Name:       name,
		Kind:       model.DiscountSale,
		ValueType:  model.ValuePercentage,
		Value:      decimal.NewFromInt(percent),
		StartDate:  start,
		EndDate:    end,
		ProductIDs: productIDs,
	})
}

func (e *testEnv) voucherUsages(t *testing.T, orderID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.VoucherUsage{}).Where("order_id = ?", orderID).Count(&n).Error)
	return n
}

func (e *testEnv) usesCount(t *testing.T, discountID uint) int {
	t.Helper()
	var d model.Discount
	require.NoError(t, e.db.First(&d, discountID).Error)
	return d.UsesCount
}

func intPtr(v int) *int { return &v }
