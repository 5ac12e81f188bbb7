package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/config"
	"storefront/internal/dto"
	"storefront/internal/gateway"
	"storefront/internal/model"
	"storefront/internal/pricing"
	"storefront/internal/repository"

	"gorm.io/gorm"
)

type OrderService interface {
	CreateOrder(ctx context.Context, userID uint, req *dto.CreateOrderRequest) (*dto.CreateOrderResponse, error)
	// GetOrder returns the order to its owner, or to any OWNER/ADMIN.
	GetOrder(ctx context.Context, userID uint, role model.Role, orderID uint) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uint, to model.OrderStatus) (*model.Order, error)
	// CapturePaypalOrder captures an approved PayPal order when the buyer returns.
	// The PAID transition itself arrives with the webhook.
	CapturePaypalOrder(ctx context.Context, paypalOrderID string) (*model.Order, error)
}

// paypalCapturer is the extra capability the PayPal adapter has over the
// common gateway interface.
type paypalCapturer interface {
	Capture(ctx context.Context, pm *model.PaymentMethod, paypalOrderID string) (*model.PaypalOrderResult, error)
}

type orderServiceImpl struct {
	db                *gorm.DB
	cfg               config.Checkout
	logger            *slog.Logger
	gateways          *gateway.Registry
	discountService   DiscountService
	dispatcher        *Dispatcher
	productRepo       repository.ProductRepository
	orderRepo         repository.OrderRepository
	paymentMethodRepo repository.PaymentMethodRepository
	shippingRateRepo  repository.ShippingRateRepository
	now               func() time.Time
}

func NewOrderService(
	db *gorm.DB,
	cfg config.Checkout,
	logger *slog.Logger,
	gateways *gateway.Registry,
	discountService DiscountService,
	dispatcher *Dispatcher,
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
	paymentMethodRepo repository.PaymentMethodRepository,
	shippingRateRepo repository.ShippingRateRepository,
) OrderService {
	return &orderServiceImpl{
		db:                db,
		cfg:               cfg,
		logger:            logger,
		gateways:          gateways,
		discountService:   discountService,
		dispatcher:        dispatcher,
		productRepo:       productRepo,
		orderRepo:         orderRepo,
		paymentMethodRepo: paymentMethodRepo,
		shippingRateRepo:  shippingRateRepo,
		now:               time.Now,
	}
}

func (s *orderServiceImpl) CreateOrder(ctx context.Context, userID uint, req *dto.CreateOrderRequest) (*dto.CreateOrderResponse, error) {
	items, err := mergeCartItems(req.CartItems)
	if err != nil {
		return nil, err
	}
	address := strings.TrimSpace(req.Shipping.Address)
	if address == "" {
		return nil, apperror.Validation("shipping address is required")
	}
	if req.PaymentMethodID == 0 {
		return nil, apperror.Validation("payment_method_id is required")
	}

	pm, gw, err := s.paymentGateway(ctx, req.PaymentMethodID)
	if err != nil {
		return nil, err
	}

	rate, err := s.shippingRateRepo.Get(ctx, req.Shipping.RateID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Validation("shipping rate %d is not available", req.Shipping.RateID)
	}
	if err != nil {
		return nil, fmt.Errorf("get shipping rate: %w", err)
	}

	productIDs := make([]uint, len(items))
	for i, it := range items {
		productIDs[i] = it.ProductID
	}

	now := s.now().UTC()
	var (
		order *model.Order
		txn   *gateway.Transaction
	)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products, err := s.productRepo.LockMany(ctx, tx, productIDs)
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}
		byID := make(map[uint]*model.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		lines := make([]pricing.Line, 0, len(items))
		for _, it := range items {
			p, ok := byID[it.ProductID]
			if !ok || !p.IsActive {
				return apperror.NotFound("product %d not found", it.ProductID)
			}
			if p.Stock < it.Quantity {
				return apperror.InsufficientStock(p.ID, p.Name, p.Stock)
			}
			lines = append(lines, pricing.Line{ProductID: p.ID, UnitPrice: p.Price, Quantity: it.Quantity})
		}

		quote, err := s.discountService.Quote(ctx, tx, userID, lines, req.VoucherCode)
		if err != nil {
			return err
		}

		for _, it := range items {
			ok, err := s.productRepo.DecrementStock(ctx, tx, it.ProductID, it.Quantity)
			if err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
			if !ok {
				p := byID[it.ProductID]
				return apperror.InsufficientStock(p.ID, p.Name, p.Stock)
			}
		}

		due := now.Add(s.cfg.PaymentExpiry)
		order = &model.Order{
			UserID:                userID,
			RecipientName:         strings.TrimSpace(req.Shipping.RecipientName),
			RecipientPhone:        strings.TrimSpace(req.Shipping.RecipientPhone),
			ShippingAddress:       address,
			ShippingCourier:       rate.Courier,
			ShippingService:       rate.Service,
			ShippingCost:          rate.Cost,
			Subtotal:              quote.Subtotal,
			SaleDiscountAmount:    quote.SaleDiscountAmount,
			VoucherDiscountAmount: quote.VoucherDiscountAmount,
			Total:                 quote.Total(rate.Cost),
			Currency:              s.cfg.Currency,
			PaymentStatus:         model.PaymentPending,
			OrderStatus:           model.OrderPending,
			PaymentMethodID:       pm.ID,
			PaymentDueDate:        &due,
		}
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("store order in db: %w", err)
		}

		orderItems := make([]*model.OrderItem, len(quote.Lines))
		for i, l := range quote.Lines {
			p := byID[l.ProductID]
			productID := p.ID
			orderItems[i] = &model.OrderItem{
				OrderID:        order.ID,
				ProductID:      &productID,
				ProductName:    p.Name,
				ProductVariant: p.Variant,
				ProductImage:   p.ImageURL,
				Price:          l.UnitPrice,
				Quantity:       l.Quantity,
				Subtotal:       l.Subtotal,
			}
		}
		if err := s.orderRepo.CreateOrderItems(ctx, tx, orderItems); err != nil {
			return fmt.Errorf("store order items in db: %w", err)
		}

		applied := make([]*model.AppliedDiscount, len(quote.Applied))
		for i, a := range quote.Applied {
			applied[i] = &model.AppliedDiscount{
				OrderID:      order.ID,
				DiscountID:   a.DiscountID,
				DiscountName: a.Name,
				Kind:         a.Kind,
				Amount:       a.Amount,
			}
		}
		if err := s.orderRepo.CreateAppliedDiscounts(ctx, tx, applied); err != nil {
			return fmt.Errorf("store applied discounts in db: %w", err)
		}

		order.Items = make([]model.OrderItem, len(orderItems))
		for i, it := range orderItems {
			order.Items[i] = *it
		}

		// a failed gateway call rolls back the stock taken above
		gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
		defer cancel()
		txn, err = gw.CreateTransaction(gctx, pm, &gateway.TransactionRequest{
			Order:        order,
			PaymentNonce: req.PaymentNonce,
		})
		if err != nil {
			return err
		}

		if err := s.orderRepo.SetPaymentArtifact(ctx, tx, order.ID, txn.Reference, txn.Token, txn.RedirectURL); err != nil {
			return fmt.Errorf("store payment artifact: %w", err)
		}
		return nil
	})
	if err != nil {
		if apperror.Is(err, apperror.KindConfiguration) {
			s.logger.Error("payment method misconfigured",
				"payment_method_id", pm.ID,
				"provider", pm.Code,
				"error", err,
			)
		}
		return nil, err
	}

	if req.ClientTotal != nil && *req.ClientTotal != order.Total {
		s.logger.Info("client total differs from server total",
			"order_id", order.ID,
			"client_total", *req.ClientTotal,
			"total", order.Total,
		)
	}

	created, err := s.orderRepo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("reload order: %w", err)
	}

	s.dispatcher.Dispatch(model.NewOrderEvent(model.EventTypeOrderCreated, created, string(pm.Code), now))

	resp := &dto.CreateOrderResponse{Order: created}
	switch pm.Code {
	case model.ProviderMidtrans:
		resp.SnapToken = txn.Token
		resp.RedirectURL = txn.RedirectURL
	case model.ProviderPaypal:
		resp.ApprovalURL = txn.RedirectURL
	default:
		resp.RedirectURL = txn.RedirectURL
	}
	return resp, nil
}

// paymentGateway loads an active payment method and its adapter, and checks
// the credentials before any stock is touched.
func (s *orderServiceImpl) paymentGateway(ctx context.Context, paymentMethodID uint) (*model.PaymentMethod, gateway.Gateway, error) {
	pm, err := s.paymentMethodRepo.Get(ctx, paymentMethodID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperror.Validation("payment method %d not found", paymentMethodID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get payment method: %w", err)
	}
	if !pm.IsActive {
		return nil, nil, apperror.Validation("payment method %d is not active", paymentMethodID)
	}

	gw, err := s.gateways.Get(pm.Code)
	if err == nil {
		err = gw.ValidateConfig(pm)
	}
	if err != nil {
		s.logger.Error("payment method misconfigured",
			"payment_method_id", pm.ID,
			"provider", pm.Code,
			"error", err,
		)
		return nil, nil, err
	}
	return pm, gw, nil
}

func (s *orderServiceImpl) GetOrder(ctx context.Context, userID uint, role model.Role, orderID uint) (*model.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("order %d not found", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	if order.UserID != userID && role != model.RoleOwner && role != model.RoleAdmin {
		return nil, apperror.Forbidden("order %d belongs to another user", orderID)
	}
	return order, nil
}

func (s *orderServiceImpl) UpdateOrderStatus(ctx context.Context, orderID uint, to model.OrderStatus) (*model.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("order %d not found", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	if order.PaymentStatus != model.PaymentPaid {
		return nil, apperror.Conflict("order %d is not paid (payment status %s)", orderID, order.PaymentStatus)
	}
	if !model.CanAdvance(order.OrderStatus, to) {
		return nil, apperror.Validation("cannot move order from %s to %s", order.OrderStatus, to)
	}

	var advanced bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		advanced, err = s.orderRepo.AdvanceOrderStatus(ctx, tx, orderID, order.OrderStatus, to)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if !advanced {
		return nil, apperror.Conflict("order %d changed concurrently", orderID)
	}

	return s.orderRepo.FindByID(ctx, orderID)
}

func (s *orderServiceImpl) CapturePaypalOrder(ctx context.Context, paypalOrderID string) (*model.Order, error) {
	if strings.TrimSpace(paypalOrderID) == "" {
		return nil, apperror.Validation("token is required")
	}

	order, err := s.orderRepo.FindByGatewayReference(ctx, paypalOrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("no order for paypal order %s", paypalOrderID)
	}
	if err != nil {
		return nil, fmt.Errorf("get order by paypal order id: %w", err)
	}
	if order.PaymentStatus.IsTerminal() {
		return order, nil
	}

	pm, gw, err := s.paymentGateway(ctx, order.PaymentMethodID)
	if err != nil {
		return nil, err
	}
	capturer, ok := gw.(paypalCapturer)
	if !ok || pm.Code != model.ProviderPaypal {
		return nil, apperror.Validation("order %d was not placed with paypal", order.ID)
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	result, err := capturer.Capture(gctx, pm, paypalOrderID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("paypal order captured",
		"order_id", order.ID,
		"paypal_order_id", paypalOrderID,
		"status", result.Status,
	)
	return order, nil
}
