package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/cache"
	"storefront/internal/gateway"
	"storefront/internal/model"
	"storefront/internal/repository"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	msgRefNotRecognised = "order reference not recognised"
	msgOrderNotFound    = "order not found"
	msgDuplicate        = "duplicate delivery ignored"
	msgApplied          = "payment status updated to %s"
)

// Outcome is what a webhook sender is told after a notification is handled.
type Outcome struct {
	Message string
	OrderID uint
	Event   model.PaymentEvent
	// Applied is true only when the payment status changed.
	Applied bool
	Status  model.PaymentStatus
}

type ReconciliationService interface {
	// HandleNotification authenticates a provider notification and applies it
	// to the referenced order exactly once. Anything that is not an error is
	// acknowledged to the sender.
	HandleNotification(ctx context.Context, provider model.PaymentProvider, in *gateway.InboundNotification) (*Outcome, error)
	// ExpireOverdueOrders cancels PENDING orders whose payment window closed.
	ExpireOverdueOrders(ctx context.Context) (int, error)
}

type reconciliationServiceImpl struct {
	db                *gorm.DB
	logger            *slog.Logger
	gateways          *gateway.Registry
	guard             cache.DeliveryGuard
	ledger            VoucherLedger
	dispatcher        *Dispatcher
	productRepo       repository.ProductRepository
	orderRepo         repository.OrderRepository
	paymentMethodRepo repository.PaymentMethodRepository
	webhookEventRepo  repository.WebhookEventRepository
	now               func() time.Time
}

func NewReconciliationService(
	db *gorm.DB,
	logger *slog.Logger,
	gateways *gateway.Registry,
	guard cache.DeliveryGuard,
	ledger VoucherLedger,
	dispatcher *Dispatcher,
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
	paymentMethodRepo repository.PaymentMethodRepository,
	webhookEventRepo repository.WebhookEventRepository,
) ReconciliationService {
	if guard == nil {
		guard = cache.NewNopDeliveryGuard()
	}
	return &reconciliationServiceImpl{
		db:                db,
		logger:            logger,
		gateways:          gateways,
		guard:             guard,
		ledger:            ledger,
		dispatcher:        dispatcher,
		productRepo:       productRepo,
		orderRepo:         orderRepo,
		paymentMethodRepo: paymentMethodRepo,
		webhookEventRepo:  webhookEventRepo,
		now:               time.Now,
	}
}

func (s *reconciliationServiceImpl) HandleNotification(ctx context.Context, provider model.PaymentProvider, in *gateway.InboundNotification) (*Outcome, error) {
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, err
	}

	n, err := gw.ParseNotification(in)
	if err != nil {
		return nil, err
	}

	if n.OrderID == 0 {
		s.logger.Warn("notification for unknown order reference",
			"provider", provider,
			"order_ref", n.OrderRef,
			"event_type", n.EventType,
		)
		return &Outcome{Message: msgRefNotRecognised}, nil
	}

	order, err := s.orderRepo.FindByID(ctx, n.OrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Warn("notification for missing order", "provider", provider, "order_id", n.OrderID)
		return &Outcome{Message: msgOrderNotFound, OrderID: n.OrderID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	pm, err := s.paymentMethodRepo.Get(ctx, order.PaymentMethodID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = apperror.Configuration("order %d references missing payment method %d", order.ID, order.PaymentMethodID).
			WithDetails(map[string]any{"payment_method_id": order.PaymentMethodID, "provider": provider})
	}
	if err != nil {
		s.logger.Error("cannot load payment method for notification",
			"payment_method_id", order.PaymentMethodID,
			"provider", provider,
			"error", err,
		)
		return nil, err
	}
	if pm.Code != provider {
		return nil, apperror.Forbidden("order %d was not placed with %s", order.ID, provider)
	}

	if err := gw.VerifyNotification(ctx, pm, n); err != nil {
		if apperror.Is(err, apperror.KindConfiguration) {
			s.logger.Error("payment method misconfigured",
				"payment_method_id", pm.ID,
				"provider", pm.Code,
				"error", err,
			)
		} else {
			s.logger.Warn("notification failed verification",
				"provider", provider,
				"order_id", order.ID,
				"error", err,
			)
		}
		return nil, err
	}

	// cheap exit before the dedup key and the transaction
	if order.PaymentStatus.IsTerminal() {
		outcome := &Outcome{
			Message: fmt.Sprintf("no action taken: order already %s", order.PaymentStatus),
			OrderID: order.ID,
			Event:   gw.MapStatus(n),
			Status:  order.PaymentStatus,
		}
		s.audit(ctx, n, outcome)
		return outcome, nil
	}

	if n.DeliveryKey != "" {
		first, err := s.guard.Claim(ctx, string(provider), n.DeliveryKey)
		if err != nil {
			s.logger.Warn("dedup guard unavailable", "provider", provider, "error", err)
			first = true
		}
		if !first {
			return &Outcome{Message: msgDuplicate, OrderID: order.ID, Status: order.PaymentStatus}, nil
		}
	}

	event := gw.MapStatus(n)
	outcome, err := s.apply(ctx, order.ID, event)
	if err != nil {
		if n.DeliveryKey != "" {
			if rerr := s.guard.Release(ctx, string(provider), n.DeliveryKey); rerr != nil {
				s.logger.Warn("release dedup claim", "provider", provider, "error", rerr)
			}
		}
		return nil, err
	}

	s.audit(ctx, n, outcome)
	if outcome.Applied {
		s.notify(ctx, outcome, string(provider))
	}
	return outcome, nil
}

func (s *reconciliationServiceImpl) ExpireOverdueOrders(ctx context.Context) (int, error) {
	now := s.now().UTC()
	orders, err := s.orderRepo.FindOverduePending(ctx, now, 100)
	if err != nil {
		return 0, fmt.Errorf("find overdue orders: %w", err)
	}

	expired := 0
	for _, o := range orders {
		outcome, err := s.apply(ctx, o.ID, model.EventExpired)
		if err != nil {
			s.logger.Error("expire order", "order_id", o.ID, "error", err)
			continue
		}
		if outcome.Applied {
			expired++
			s.notify(ctx, outcome, "")
		}
	}
	return expired, nil
}

// apply runs one transition under the order row lock. The decision is taken on
// the locked status, and the write is a compare-and-set on it.
func (s *reconciliationServiceImpl) apply(ctx context.Context, orderID uint, event model.PaymentEvent) (*Outcome, error) {
	outcome := &Outcome{OrderID: orderID, Event: event}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.LockByID(ctx, tx, orderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		outcome.Status = order.PaymentStatus

		t, ok := LookupTransition(order.PaymentStatus, event)
		if !ok {
			return fmt.Errorf("no transition from %s on %s", order.PaymentStatus, event)
		}
		if t.Noop {
			outcome.Message = t.Reason
			return nil
		}

		now := s.now().UTC()
		fields := map[string]interface{}{}
		if t.Has(EffectStartFulfilment) {
			fields["order_status"] = model.OrderProcessing
			fields["paid_at"] = now
		}
		if t.Has(EffectCancelOrder) {
			fields["order_status"] = model.OrderCancelled
		}

		moved, err := s.orderRepo.TransitionPayment(ctx, tx, orderID, order.PaymentStatus, t.Next, fields)
		if err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}
		if !moved {
			outcome.Message = fmt.Sprintf("no action taken: order already %s", order.PaymentStatus)
			return nil
		}

		if t.Has(EffectRestoreStock) {
			for _, it := range order.Items {
				if it.ProductID == nil {
					continue
				}
				if err := s.productRepo.IncrementStock(ctx, tx, *it.ProductID, it.Quantity); err != nil {
					return fmt.Errorf("restore stock: %w", err)
				}
			}
		}

		if t.Has(EffectCommitVoucher) {
			if _, err := s.ledger.CommitVoucherUsage(ctx, tx, orderID, order.UserID); err != nil {
				return err
			}
		}

		outcome.Applied = true
		outcome.Status = t.Next
		outcome.Message = fmt.Sprintf(msgApplied, t.Next)
		return nil
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, fmt.Sprintf("apply %s to order %d", event, orderID))
	}
	return outcome, nil
}

// audit keeps a record of every authenticated notification. A failure here
// does not undo the transition.
func (s *reconciliationServiceImpl) audit(ctx context.Context, n *gateway.Notification, outcome *Outcome) {
	payload := n.Body
	if !json.Valid(payload) {
		payload, _ = json.Marshal(string(n.Body))
	}

	err := s.webhookEventRepo.Record(ctx, &model.WebhookEvent{
		Provider:  string(n.Provider),
		OrderRef:  n.OrderRef,
		EventType: n.EventType,
		Outcome:   outcome.Message,
		Payload:   datatypes.JSON(payload),
	})
	if err != nil {
		s.logger.Warn("record webhook event", "provider", n.Provider, "order_ref", n.OrderRef, "error", err)
	}
}

func (s *reconciliationServiceImpl) notify(ctx context.Context, outcome *Outcome, provider string) {
	order, err := s.orderRepo.FindByID(ctx, outcome.OrderID)
	if err != nil {
		s.logger.Warn("reload order for notification", "order_id", outcome.OrderID, "error", err)
		return
	}
	s.dispatcher.Dispatch(model.NewOrderEvent(eventTypeFor(outcome.Status), order, provider, s.now().UTC()))
}
