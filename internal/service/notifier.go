package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"storefront/internal/client"
	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type Notifier interface {
	Name() string
	Notify(ctx context.Context, event model.OrderEvent) error
}

// Dispatcher runs notifiers outside the request and outside any database
// transaction. A failing notifier is logged and never retried.
type Dispatcher struct {
	notifiers []Notifier
	logger    *slog.Logger
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewDispatcher(logger *slog.Logger, timeout time.Duration, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{
		notifiers: notifiers,
		logger:    logger,
		timeout:   timeout,
	}
}

func (d *Dispatcher) Dispatch(event model.OrderEvent) {
	if d == nil {
		return
	}
	for _, n := range d.notifiers {
		d.wg.Add(1)
		go func(n Notifier) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()

			if err := n.Notify(ctx, event); err != nil {
				d.logger.Error("notification failed",
					"notifier", n.Name(),
					"event", event.Type,
					"order_id", event.OrderID,
					"error", err,
				)
			}
		}(n)
	}
}

// Wait blocks until in-flight notifications finish; used on shutdown and in tests.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

type kafkaNotifier struct {
	publisher client.EventPublisher
}

func NewKafkaNotifier(publisher client.EventPublisher) Notifier {
	return &kafkaNotifier{publisher: publisher}
}

func (n *kafkaNotifier) Name() string { return "kafka" }

func (n *kafkaNotifier) Notify(ctx context.Context, event model.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	orderID := strconv.FormatUint(uint64(event.OrderID), 10)
	env := model.Envelope{
		EventID:       uuid.NewString(),
		EventType:     event.Type,
		EventVersion:  1,
		OccurredAt:    event.OccurredAt,
		Producer:      "storefront",
		CorrelationID: orderID,
		Payload:       payload,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	return n.publisher.Publish(ctx, []byte(orderID), value,
		kafka.Header{Key: "event_type", Value: []byte(event.Type)},
	)
}

type telegramNotifier struct {
	client client.TelegramClient
}

func NewTelegramNotifier(c client.TelegramClient) Notifier {
	return &telegramNotifier{client: c}
}

func (n *telegramNotifier) Name() string { return "telegram" }

func (n *telegramNotifier) Notify(ctx context.Context, event model.OrderEvent) error {
	var headline string
	switch event.Type {
	case model.EventTypeOrderCreated:
		headline = "New order"
	case model.EventTypeOrderPaid:
		headline = "Payment received"
	case model.EventTypeOrderCancelled:
		headline = "Order cancelled"
	case model.EventTypeOrderRefunded:
		headline = "Order refunded"
	default:
		headline = event.Type
	}

	text := fmt.Sprintf("<b>%s</b>\nOrder #%d\nTotal: %s %d\nPayment: %s",
		headline, event.OrderID, event.Currency, event.Total, event.PaymentStatus)
	if event.Provider != "" {
		text += "\nVia: " + event.Provider
	}
	return n.client.SendMessage(ctx, text)
}
