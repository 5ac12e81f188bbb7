// Package gateway adapts each payment provider to one capability interface,
// selected by the code stored on the order's payment method.
package gateway

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/apperror"
	"storefront/internal/model"
)

type TransactionRequest struct {
	Order        *model.Order
	PaymentNonce string
}

// Transaction is the redirect artifact handed back to the buyer.
type Transaction struct {
	Reference   string
	Token       string
	RedirectURL string
}

type InboundNotification struct {
	Headers http.Header
	Body    []byte
}

type Notification struct {
	Provider model.PaymentProvider
	OrderRef string
	// zero when OrderRef does not decode to an order id
	OrderID   uint
	EventType string
	// identifies one delivery for de-duplication
	DeliveryKey string

	Headers http.Header
	Body    []byte
	payload any
}

type Gateway interface {
	Code() model.PaymentProvider
	// ValidateConfig fails with a configuration error when credentials needed to
	// talk to the provider are missing.
	ValidateConfig(pm *model.PaymentMethod) error
	CreateTransaction(ctx context.Context, pm *model.PaymentMethod, req *TransactionRequest) (*Transaction, error)
	ParseNotification(in *InboundNotification) (*Notification, error)
	VerifyNotification(ctx context.Context, pm *model.PaymentMethod, n *Notification) error
	MapStatus(n *Notification) model.PaymentEvent
}

type Registry struct {
	gateways map[model.PaymentProvider]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[model.PaymentProvider]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Code()] = g
	}
	return r
}

func (r *Registry) Get(code model.PaymentProvider) (Gateway, error) {
	g, ok := r.gateways[code]
	if !ok {
		return nil, apperror.Configuration("no payment gateway registered for %q", code)
	}
	return g, nil
}

const orderRefPrefix = "ORDER-"

func FormatOrderRef(orderID uint) string {
	return orderRefPrefix + strconv.FormatUint(uint64(orderID), 10)
}

// ParseOrderRef accepts only the exact form FormatOrderRef produces, so the
// encoding round-trips.
func ParseOrderRef(ref string) (uint, error) {
	digits, ok := strings.CutPrefix(ref, orderRefPrefix)
	if !ok {
		return 0, apperror.Validation("order reference %q has no %s prefix", ref, orderRefPrefix)
	}
	id, err := strconv.ParseUint(digits, 10, 64)
	if err != nil || id == 0 || FormatOrderRef(uint(id)) != ref {
		return 0, apperror.Validation("malformed order reference %q", ref)
	}
	return uint(id), nil
}

func missingCredential(pm *model.PaymentMethod, field string) error {
	return apperror.Configuration("payment method %d (%s) is missing %s", pm.ID, pm.Code, field).
		WithDetails(map[string]any{"payment_method_id": pm.ID, "provider": pm.Code})
}

func resolveOrder(n *Notification) {
	if id, err := ParseOrderRef(n.OrderRef); err == nil {
		n.OrderID = id
	}
}

func gatewayError(provider model.PaymentProvider, err error) error {
	return apperror.Gateway(err, "%s create transaction", strings.ToLower(string(provider)))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
