package dto

import (
	"time"

	"storefront/internal/model"

	"github.com/shopspring/decimal"
)

type CartItem struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type ShippingSelection struct {
	RecipientName  string `json:"recipient_name"`
	RecipientPhone string `json:"recipient_phone"`
	Address        string `json:"address"`
	RateID         uint   `json:"rate_id"`
}

type CreateOrderRequest struct {
	CartItems       []CartItem        `json:"cart_items"`
	Shipping        ShippingSelection `json:"shipping"`
	PaymentMethodID uint              `json:"payment_method_id"`
	VoucherCode     string            `json:"voucher_code,omitempty"`
	// card nonce, Braintree only
	PaymentNonce string `json:"payment_nonce,omitempty"`
	// client-side totals are accepted for display and never trusted
	ClientTotal *int64 `json:"client_total,omitempty"`
}

type CreateOrderResponse struct {
	Order       *model.Order `json:"order"`
	SnapToken   string       `json:"snap_token,omitempty"`
	RedirectURL string       `json:"redirect_url,omitempty"`
	ApprovalURL string       `json:"approval_url,omitempty"`
}

type ValidateVoucherRequest struct {
	Code      string     `json:"code"`
	CartItems []CartItem `json:"cart_items"`
}

type ValidateVoucherResponse struct {
	DiscountID         uint   `json:"discount_id"`
	Code               string `json:"code"`
	DiscountAmount     int64  `json:"discount_amount"`
	ApplicableProducts []uint `json:"applicable_product_ids"`
}

type DiscountRequest struct {
	Name           string                  `json:"name"`
	Kind           model.DiscountKind      `json:"kind"`
	Code           string                  `json:"code,omitempty"`
	ValueType      model.DiscountValueType `json:"value_type"`
	Value          decimal.Decimal         `json:"value"`
	MaxDiscount    *int64                  `json:"max_discount,omitempty"`
	StartDate      time.Time               `json:"start_date"`
	EndDate        time.Time               `json:"end_date"`
	IsActive       *bool                   `json:"is_active,omitempty"`
	MaxUses        *int                    `json:"max_uses,omitempty"`
	MaxUsesPerUser *int                    `json:"max_uses_per_user,omitempty"`
	ProductIDs     []uint                  `json:"product_ids"`
}

type UpdateOrderStatusRequest struct {
	Status model.OrderStatus `json:"status"`
}

type WebhookAck struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}
