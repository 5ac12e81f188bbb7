package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Product struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Variant   string    `gorm:"size:128" json:"variant"`
	ImageURL  string    `gorm:"size:512" json:"image_url"`
	Price     int64     `gorm:"not null" json:"price"`
	Stock     int       `gorm:"not null;default:0;check:chk_products_stock,stock >= 0" json:"stock"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Order struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"index;not null" json:"user_id"`

	// shipping snapshot
	RecipientName   string `gorm:"size:255" json:"recipient_name"`
	RecipientPhone  string `gorm:"size:32" json:"recipient_phone"`
	ShippingAddress string `gorm:"size:1024;not null" json:"shipping_address"`
	ShippingCourier string `gorm:"size:64" json:"shipping_courier"`
	ShippingService string `gorm:"size:64" json:"shipping_service"`
	ShippingCost    int64  `gorm:"not null" json:"shipping_cost"`

	Subtotal              int64  `gorm:"not null" json:"subtotal"`
	SaleDiscountAmount    int64  `gorm:"not null;default:0" json:"sale_discount_amount"`
	VoucherDiscountAmount int64  `gorm:"not null;default:0" json:"voucher_discount_amount"`
	Total                 int64  `gorm:"not null" json:"total"` // subtotal - discounts + shipping
	Currency              string `gorm:"size:8;not null" json:"currency"`

	PaymentStatus   PaymentStatus `gorm:"size:16;index;not null" json:"payment_status"`
	OrderStatus     OrderStatus   `gorm:"size:16;index;not null" json:"order_status"`
	PaymentMethodID uint          `gorm:"index;not null" json:"payment_method_id"`

	// remote transaction created by the gateway adapter
	GatewayReference string `gorm:"size:128;index" json:"gateway_reference,omitempty"`
	PaymentToken     string `gorm:"size:255" json:"payment_token,omitempty"`
	PaymentURL       string `gorm:"size:1024" json:"payment_url,omitempty"`

	PaymentDueDate *time.Time `gorm:"index" json:"payment_due_date,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	Items            []OrderItem       `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	AppliedDiscounts []AppliedDiscount `gorm:"foreignKey:OrderID" json:"applied_discounts,omitempty"`
}

// OrderItem is a snapshot of the product at order time. ProductID is nulled
// out if the product is later deleted.
type OrderItem struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrderID        uint      `gorm:"index;not null" json:"order_id"`
	ProductID      *uint     `gorm:"index" json:"product_id"`
	ProductName    string    `gorm:"size:255;not null" json:"product_name"`
	ProductVariant string    `gorm:"size:128" json:"product_variant"`
	ProductImage   string    `gorm:"size:512" json:"product_image"`
	Price          int64     `gorm:"not null" json:"price"`
	Quantity       int       `gorm:"not null" json:"quantity"`
	Subtotal       int64     `gorm:"not null" json:"subtotal"`
	CreatedAt      time.Time `json:"created_at"`
}

type AppliedDiscount struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	OrderID      uint         `gorm:"index;not null" json:"order_id"`
	DiscountID   uint         `gorm:"index;not null" json:"discount_id"`
	DiscountName string       `gorm:"size:255" json:"discount_name"`
	Kind         DiscountKind `gorm:"size:16;not null" json:"kind"`
	Amount       int64        `gorm:"not null" json:"amount"`
	CreatedAt    time.Time    `json:"created_at"`
}

type Discount struct {
	ID   uint         `gorm:"primaryKey" json:"id"`
	Name string       `gorm:"size:255;not null" json:"name"`
	Kind DiscountKind `gorm:"size:16;index;not null" json:"kind"`
	// vouchers only; stored upper-cased
	Code        *string           `gorm:"size:64;uniqueIndex" json:"code,omitempty"`
	ValueType   DiscountValueType `gorm:"size:16;not null" json:"value_type"`
	Value       decimal.Decimal   `gorm:"type:decimal(15,2);not null" json:"value"`
	MaxDiscount *int64            `json:"max_discount,omitempty"`

	StartDate time.Time `gorm:"index;not null" json:"start_date"`
	EndDate   time.Time `gorm:"index;not null" json:"end_date"`
	IsActive  bool      `gorm:"not null" json:"is_active"`

	MaxUses        *int `json:"max_uses,omitempty"`
	MaxUsesPerUser *int `json:"max_uses_per_user,omitempty"`
	UsesCount      int  `gorm:"not null;default:0" json:"uses_count"`

	Products  []DiscountProduct `gorm:"foreignKey:DiscountID" json:"products,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ProductIDs lists the product allowlist of the discount.
func (d *Discount) ProductIDs() []uint {
	ids := make([]uint, len(d.Products))
	for i, p := range d.Products {
		ids[i] = p.ProductID
	}
	return ids
}

type DiscountProduct struct {
	DiscountID uint `gorm:"primaryKey"`
	ProductID  uint `gorm:"primaryKey;index"`
}

// VoucherUsage rows are the idempotency guard for Discount.UsesCount: at most
// one per order.
type VoucherUsage struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"index:idx_voucher_usage_user;not null" json:"user_id"`
	DiscountID uint      `gorm:"index:idx_voucher_usage_user;not null" json:"discount_id"`
	OrderID    uint      `gorm:"uniqueIndex;not null" json:"order_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type PaymentMethod struct {
	ID       uint            `gorm:"primaryKey" json:"id"`
	Name     string          `gorm:"size:128;not null" json:"name"`
	Code     PaymentProvider `gorm:"size:32;index;not null" json:"code"`
	Mode     PaymentMode     `gorm:"size:16;not null;default:sandbox" json:"mode"`
	IsActive bool            `gorm:"not null" json:"is_active"`

	// MIDTRANS
	ServerKey string `gorm:"size:255" json:"-"`
	ClientKey string `gorm:"size:255" json:"-"`
	// PAYPAL
	ClientID     string `gorm:"size:255" json:"-"`
	ClientSecret string `gorm:"size:255" json:"-"`
	WebhookID    string `gorm:"size:128" json:"-"`
	// BRAINTREE
	MerchantID string `gorm:"size:128" json:"-"`
	PublicKey  string `gorm:"size:255" json:"-"`
	PrivateKey string `gorm:"size:255" json:"-"`

	ReturnURL string `gorm:"size:512" json:"-"`
	CancelURL string `gorm:"size:512" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ShippingRate struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Courier  string `gorm:"size:64;not null" json:"courier"`
	Service  string `gorm:"size:64;not null" json:"service"`
	Cost     int64  `gorm:"not null" json:"cost"`
	IsActive bool   `gorm:"not null" json:"is_active"`
}

type WebhookEvent struct {
	ID        uint           `gorm:"primaryKey"`
	Provider  string         `gorm:"size:32;index;not null"`
	OrderRef  string         `gorm:"size:64;index"`
	EventType string         `gorm:"size:64;index"`
	Outcome   string         `gorm:"size:255"`
	Payload   datatypes.JSON `gorm:"type:json"`
	CreatedAt time.Time
}
