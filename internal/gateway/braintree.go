package gateway

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"net/url"
	"strings"

	"storefront/internal/apperror"
	"storefront/internal/client"
	"storefront/internal/model"
)

// Braintree charges a drop-in nonce at checkout; settlement arrives later as
// a signed webhook.
type Braintree struct {
	client client.BraintreeClient
}

func NewBraintree(c client.BraintreeClient) *Braintree {
	return &Braintree{client: c}
}

func (g *Braintree) Code() model.PaymentProvider { return model.ProviderBraintree }

func (g *Braintree) ValidateConfig(pm *model.PaymentMethod) error {
	switch {
	case strings.TrimSpace(pm.MerchantID) == "":
		return missingCredential(pm, "merchant id")
	case strings.TrimSpace(pm.PublicKey) == "":
		return missingCredential(pm, "public key")
	case strings.TrimSpace(pm.PrivateKey) == "":
		return missingCredential(pm, "private key")
	}
	return nil
}

func credentials(pm *model.PaymentMethod) client.BraintreeCredentials {
	return client.BraintreeCredentials{
		Mode:       pm.Mode,
		MerchantID: pm.MerchantID,
		PublicKey:  pm.PublicKey,
		PrivateKey: pm.PrivateKey,
	}
}

func (g *Braintree) CreateTransaction(ctx context.Context, pm *model.PaymentMethod, req *TransactionRequest) (*Transaction, error) {
	if err := g.ValidateConfig(pm); err != nil {
		return nil, err
	}
	if req.PaymentNonce == "" {
		return nil, apperror.Validation("payment_nonce is required for braintree payments")
	}

	txID, err := g.client.Sale(ctx, credentials(pm), client.BraintreeSale{
		OrderRef: FormatOrderRef(req.Order.ID),
		Amount:   req.Order.Total,
		Nonce:    req.PaymentNonce,
	})
	if err != nil {
		return nil, gatewayError(g.Code(), err)
	}
	return &Transaction{Reference: txID}, nil
}

// btPayload is the subset of the notification XML needed to find the order
// before the signature can be checked with that order's keys.
type btPayload struct {
	Kind    string `xml:"kind"`
	Subject struct {
		Transaction struct {
			ID      string `xml:"id"`
			OrderID string `xml:"order-id"`
		} `xml:"transaction"`
	} `xml:"subject"`
}

type btSigned struct {
	signature string
	payload   string
}

func (g *Braintree) ParseNotification(in *InboundNotification) (*Notification, error) {
	form, err := url.ParseQuery(string(in.Body))
	if err != nil {
		return nil, apperror.Validation("unreadable braintree notification: %v", err)
	}
	signed := btSigned{signature: form.Get("bt_signature"), payload: form.Get("bt_payload")}
	if signed.signature == "" || signed.payload == "" {
		return nil, apperror.Validation("bt_signature and bt_payload are required")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(signed.payload, "\n", ""))
	if err != nil {
		return nil, apperror.Validation("bt_payload is not base64: %v", err)
	}
	var p btPayload
	if err := xml.Unmarshal(raw, &p); err != nil {
		return nil, apperror.Validation("bt_payload is not a notification: %v", err)
	}

	n := &Notification{
		Provider:    g.Code(),
		OrderRef:    p.Subject.Transaction.OrderID,
		EventType:   p.Kind,
		DeliveryKey: p.Kind + ":" + p.Subject.Transaction.ID,
		Headers:     in.Headers,
		Body:        in.Body,
		payload:     signed,
	}
	resolveOrder(n)
	return n, nil
}

func (g *Braintree) VerifyNotification(_ context.Context, pm *model.PaymentMethod, n *Notification) error {
	if err := g.ValidateConfig(pm); err != nil {
		return err
	}
	signed, ok := n.payload.(btSigned)
	if !ok {
		return apperror.Forbidden("braintree notification was not parsed")
	}

	verified, err := g.client.ParseWebhook(credentials(pm), signed.signature, signed.payload)
	if err != nil {
		return apperror.Forbidden("invalid braintree signature: %v", err)
	}
	if verified.OrderRef != n.OrderRef || verified.Kind != n.EventType {
		return apperror.Forbidden("braintree payload does not match its signature")
	}
	return nil
}

func (g *Braintree) MapStatus(n *Notification) model.PaymentEvent {
	switch n.EventType {
	case "transaction_settled":
		return model.EventPaid
	case "transaction_settlement_declined":
		return model.EventCancelled
	default:
		return model.EventUnhandled
	}
}
