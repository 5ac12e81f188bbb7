package gateway

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"storefront/internal/apperror"
	"storefront/internal/client"
	"storefront/internal/config"
	"storefront/internal/model"
)

// Midtrans is the Snap (token + redirect) checkout.
type Midtrans struct {
	client client.MidtransClient
	cfg    config.Midtrans
}

func NewMidtrans(c client.MidtransClient, cfg config.Midtrans) *Midtrans {
	return &Midtrans{client: c, cfg: cfg}
}

func (g *Midtrans) Code() model.PaymentProvider { return model.ProviderMidtrans }

func (g *Midtrans) ValidateConfig(pm *model.PaymentMethod) error {
	if strings.TrimSpace(pm.ServerKey) == "" {
		return missingCredential(pm, "server key")
	}
	return nil
}

func (g *Midtrans) baseURL(pm *model.PaymentMethod) string {
	if pm.Mode == model.ModeProduction {
		return g.cfg.ProductionURL
	}
	return g.cfg.SandboxURL
}

func (g *Midtrans) CreateTransaction(ctx context.Context, pm *model.PaymentMethod, req *TransactionRequest) (*Transaction, error) {
	if err := g.ValidateConfig(pm); err != nil {
		return nil, err
	}

	order := req.Order
	ref := FormatOrderRef(order.ID)
	snapReq := &model.MidtransSnapRequest{
		TransactionDetails: model.MidtransTransactionDetails{
			OrderID:     ref,
			GrossAmount: order.Total,
		},
		ItemDetails: midtransItems(order),
	}
	if pm.ReturnURL != "" {
		snapReq.Callbacks = &model.MidtransCallbacks{Finish: pm.ReturnURL}
	}

	res, err := g.client.CreateSnapTransaction(ctx, g.baseURL(pm), pm.ServerKey, snapReq)
	if err != nil {
		return nil, gatewayError(g.Code(), err)
	}

	return &Transaction{
		Reference:   ref,
		Token:       res.Token,
		RedirectURL: res.RedirectURL,
	}, nil
}

// midtransItems lists every order line plus shipping. Discounts go in as one
// negative line so the items add up to the gross amount.
func midtransItems(order *model.Order) []model.MidtransItemDetail {
	items := make([]model.MidtransItemDetail, 0, len(order.Items)+2)
	for _, it := range order.Items {
		id := "ITEM-" + strconv.FormatUint(uint64(it.ID), 10)
		if it.ProductID != nil {
			id = "PRODUCT-" + strconv.FormatUint(uint64(*it.ProductID), 10)
		}
		name := it.ProductName
		if it.ProductVariant != "" {
			name += " - " + it.ProductVariant
		}
		items = append(items, model.MidtransItemDetail{
			ID:       id,
			Price:    it.Price,
			Quantity: it.Quantity,
			Name:     truncate(name, 50),
		})
	}

	if order.ShippingCost > 0 {
		items = append(items, model.MidtransItemDetail{
			ID:       "SHIPPING",
			Price:    order.ShippingCost,
			Quantity: 1,
			Name:     truncate("Shipping "+strings.TrimSpace(order.ShippingCourier+" "+order.ShippingService), 50),
		})
	}

	if discount := order.SaleDiscountAmount + order.VoucherDiscountAmount; discount > 0 {
		items = append(items, model.MidtransItemDetail{
			ID:       "DISCOUNT",
			Price:    -discount,
			Quantity: 1,
			Name:     "Discount",
		})
	}
	return items
}

func (g *Midtrans) ParseNotification(in *InboundNotification) (*Notification, error) {
	var body model.MidtransNotification
	if err := json.Unmarshal(in.Body, &body); err != nil {
		return nil, apperror.Validation("unreadable midtrans notification: %v", err)
	}

	key := body.TransactionID
	if key == "" {
		key = body.OrderID
	}
	n := &Notification{
		Provider:    g.Code(),
		OrderRef:    body.OrderID,
		EventType:   body.TransactionStatus,
		DeliveryKey: key + ":" + body.TransactionStatus + ":" + body.StatusCode,
		Headers:     in.Headers,
		Body:        in.Body,
		payload:     &body,
	}
	resolveOrder(n)
	return n, nil
}

// MidtransSignature is sha512(order_id + status_code + gross_amount + server_key), hex encoded.
func MidtransSignature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func (g *Midtrans) VerifyNotification(_ context.Context, pm *model.PaymentMethod, n *Notification) error {
	if err := g.ValidateConfig(pm); err != nil {
		return err
	}
	body, ok := n.payload.(*model.MidtransNotification)
	if !ok {
		return apperror.Forbidden("midtrans notification was not parsed")
	}

	expected := MidtransSignature(body.OrderID, body.StatusCode, body.GrossAmount, pm.ServerKey)
	got := strings.ToLower(strings.TrimSpace(body.SignatureKey))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		return apperror.Forbidden("invalid midtrans signature for %s", body.OrderID)
	}
	return nil
}

func (g *Midtrans) MapStatus(n *Notification) model.PaymentEvent {
	body, ok := n.payload.(*model.MidtransNotification)
	if !ok {
		return model.EventUnhandled
	}

	switch body.TransactionStatus {
	case "capture":
		switch body.FraudStatus {
		case "accept", "":
			return model.EventPaid
		case "challenge":
			return model.EventPending
		default:
			return model.EventCancelled
		}
	case "settlement":
		return model.EventPaid
	case "cancel", "deny", "failure":
		return model.EventCancelled
	case "expire":
		return model.EventExpired
	case "refund":
		return model.EventRefunded
	case "pending", "partial_refund", "authorize":
		return model.EventPending
	default:
		return model.EventUnhandled
	}
}
