package client

import (
	"context"
	"fmt"

	"storefront/internal/model"

	"github.com/braintree-go/braintree-go"
)

type BraintreeCredentials struct {
	Mode       model.PaymentMode
	MerchantID string
	PublicKey  string
	PrivateKey string
}

type BraintreeSale struct {
	OrderRef string
	// whole currency units
	Amount int64
	Nonce  string
}

// BraintreeNotification is the verified part of a webhook we act on.
type BraintreeNotification struct {
	Kind          string
	OrderRef      string
	TransactionID string
}

type BraintreeClient interface {
	// Sale charges a one-time nonce from the drop-in UI and submits it for settlement.
	Sale(ctx context.Context, creds BraintreeCredentials, sale BraintreeSale) (string, error)

	// ParseWebhook checks bt_signature against the merchant keys and decodes bt_payload.
	ParseWebhook(creds BraintreeCredentials, signature, payload string) (*BraintreeNotification, error)
}

type braintreeClientImpl struct{}

func NewBraintreeClient() BraintreeClient {
	return &braintreeClientImpl{}
}

func braintreeGateway(creds BraintreeCredentials) *braintree.Braintree {
	env := braintree.Sandbox
	if creds.Mode == model.ModeProduction {
		env = braintree.Production
	}

	return braintree.New(
		env,
		creds.MerchantID,
		creds.PublicKey,
		creds.PrivateKey,
	)
}

func (c *braintreeClientImpl) Sale(ctx context.Context, creds BraintreeCredentials, sale BraintreeSale) (string, error) {
	// NewDecimal(unscaled, scale): 150000 -> 150000.00
	btAmount := braintree.NewDecimal(sale.Amount*100, 2)

	req := &braintree.TransactionRequest{
		Type:               "sale",
		Amount:             btAmount,
		OrderId:            sale.OrderRef,
		PaymentMethodNonce: sale.Nonce,
		Options: &braintree.TransactionOptions{
			SubmitForSettlement: true,
		},
	}

	tx, err := braintreeGateway(creds).Transaction().Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("transaction creation failed: %w", err)
	}

	if tx.Status == braintree.TransactionStatusProcessorDeclined || tx.Status == braintree.TransactionStatusGatewayRejected {
		return "", fmt.Errorf("transaction declined by processor: %s", tx.ProcessorResponseText)
	}

	return tx.Id, nil
}

func (c *braintreeClientImpl) ParseWebhook(creds BraintreeCredentials, signature, payload string) (*BraintreeNotification, error) {
	n, err := braintreeGateway(creds).WebhookNotification().Parse(signature, payload)
	if err != nil {
		return nil, fmt.Errorf("parse braintree webhook: %w", err)
	}

	out := &BraintreeNotification{Kind: n.Kind}
	if n.Subject != nil && n.Subject.Transaction != nil {
		out.OrderRef = n.Subject.Transaction.OrderId
		out.TransactionID = n.Subject.Transaction.Id
	}
	return out, nil
}
