package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"storefront/internal/apperror"
	"storefront/internal/client"
	"storefront/internal/config"
	"storefront/internal/model"

	"github.com/shopspring/decimal"
)

// Paypal is the approval-link checkout: the buyer approves on PayPal and comes
// back to /api/paypal/success, where the order is captured.
type Paypal struct {
	client  client.PaypalClient
	cfg     config.Paypal
	baseURL string
}

func NewPaypal(c client.PaypalClient, cfg config.Paypal, serviceBaseURL string) *Paypal {
	return &Paypal{client: c, cfg: cfg, baseURL: strings.TrimRight(serviceBaseURL, "/")}
}

func (g *Paypal) Code() model.PaymentProvider { return model.ProviderPaypal }

func (g *Paypal) ValidateConfig(pm *model.PaymentMethod) error {
	if strings.TrimSpace(pm.ClientID) == "" {
		return missingCredential(pm, "client id")
	}
	if strings.TrimSpace(pm.ClientSecret) == "" {
		return missingCredential(pm, "client secret")
	}
	return nil
}

func (g *Paypal) credentials(pm *model.PaymentMethod) client.PaypalCredentials {
	base := g.cfg.SandboxApiURL
	if pm.Mode == model.ModeProduction {
		base = g.cfg.ProductionApiURL
	}
	return client.PaypalCredentials{
		BaseApiURL:   base,
		ClientID:     pm.ClientID,
		ClientSecret: pm.ClientSecret,
	}
}

func (g *Paypal) CreateTransaction(ctx context.Context, pm *model.PaymentMethod, req *TransactionRequest) (*Transaction, error) {
	if err := g.ValidateConfig(pm); err != nil {
		return nil, err
	}

	order := req.Order
	ref := FormatOrderRef(order.ID)

	returnURL := pm.ReturnURL
	if returnURL == "" {
		returnURL = g.baseURL + "/api/paypal/success"
	}
	cancelURL := pm.CancelURL
	if cancelURL == "" {
		// if user cancel during paypal payment, return to our homepage
		cancelURL = g.baseURL
	}

	payload := &model.PaypalCreateOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []model.PaypalPurchaseUnit{
			{
				ReferenceID: ref,
				CustomID:    ref,
				Description: "Order " + ref,
				Amount: &model.PaypalAmount{
					Currency: order.Currency,
					Value:    decimal.NewFromInt(order.Total).StringFixed(2),
				},
			},
		},
		ApplicationContext: &model.PaypalApplicationContext{
			ReturnURL: returnURL,
			CancelURL: cancelURL,
		},
	}

	result, err := g.client.CreateOrder(ctx, g.credentials(pm), payload)
	if err != nil {
		return nil, gatewayError(g.Code(), err)
	}

	approveURL := client.ApproveURL(result.Links)
	if approveURL == "" {
		return nil, apperror.Gateway(nil, "paypal order %s has no approve link", result.ID)
	}

	return &Transaction{
		Reference:   result.ID,
		RedirectURL: approveURL,
	}, nil
}

// Capture settles an order the buyer approved.
func (g *Paypal) Capture(ctx context.Context, pm *model.PaymentMethod, paypalOrderID string) (*model.PaypalOrderResult, error) {
	if err := g.ValidateConfig(pm); err != nil {
		return nil, err
	}
	result, err := g.client.CaptureOrder(ctx, g.credentials(pm), paypalOrderID)
	if err != nil {
		return nil, apperror.Gateway(err, "paypal capture order %s", paypalOrderID)
	}
	return result, nil
}

func (g *Paypal) ParseNotification(in *InboundNotification) (*Notification, error) {
	var event model.PaypalWebhookEvent
	if err := json.Unmarshal(in.Body, &event); err != nil {
		return nil, apperror.Validation("unreadable paypal event: %v", err)
	}

	ref := event.Resource.CustomID
	for _, pu := range event.Resource.PurchaseUnits {
		if pu.ReferenceID != "" {
			ref = pu.ReferenceID
			break
		}
		if ref == "" && pu.CustomID != "" {
			ref = pu.CustomID
		}
	}

	key := event.ID
	if key == "" {
		key = event.EventType + ":" + event.Resource.ID
	}
	n := &Notification{
		Provider:    g.Code(),
		OrderRef:    ref,
		EventType:   event.EventType,
		DeliveryKey: key,
		Headers:     in.Headers,
		Body:        in.Body,
		payload:     &event,
	}
	resolveOrder(n)
	return n, nil
}

var paypalTransmissionHeaders = []string{
	"PAYPAL-AUTH-ALGO",
	"PAYPAL-CERT-URL",
	"PAYPAL-TRANSMISSION-ID",
	"PAYPAL-TRANSMISSION-SIG",
	"PAYPAL-TRANSMISSION-TIME",
}

func (g *Paypal) VerifyNotification(ctx context.Context, pm *model.PaymentMethod, n *Notification) error {
	if err := g.ValidateConfig(pm); err != nil {
		return err
	}
	if strings.TrimSpace(pm.WebhookID) == "" {
		return missingCredential(pm, "webhook id")
	}
	for _, h := range paypalTransmissionHeaders {
		if n.Headers.Get(h) == "" {
			return apperror.Forbidden("missing %s header", h)
		}
	}

	ok, err := g.client.VerifyWebhookSignature(ctx, g.credentials(pm), &model.PaypalVerifySignatureRequest{
		AuthAlgo:         n.Headers.Get("PAYPAL-AUTH-ALGO"),
		CertURL:          n.Headers.Get("PAYPAL-CERT-URL"),
		TransmissionID:   n.Headers.Get("PAYPAL-TRANSMISSION-ID"),
		TransmissionSig:  n.Headers.Get("PAYPAL-TRANSMISSION-SIG"),
		TransmissionTime: n.Headers.Get("PAYPAL-TRANSMISSION-TIME"),
		WebhookID:        pm.WebhookID,
		WebhookEvent:     n.Body,
	})
	if err != nil {
		return apperror.Gateway(err, "paypal verify webhook signature")
	}
	if !ok {
		return apperror.Forbidden("paypal webhook signature verification failed")
	}
	return nil
}

func (g *Paypal) MapStatus(n *Notification) model.PaymentEvent {
	switch n.EventType {
	case "CHECKOUT.ORDER.COMPLETED", "PAYMENT.CAPTURE.COMPLETED":
		return model.EventPaid
	case "CHECKOUT.ORDER.APPROVED", "PAYMENT.CAPTURE.PENDING":
		return model.EventPending
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED", "CHECKOUT.ORDER.VOIDED":
		return model.EventCancelled
	case "PAYMENT.CAPTURE.REFUNDED", "PAYMENT.CAPTURE.REVERSED":
		return model.EventRefunded
	default:
		return model.EventUnhandled
	}
}
