package model

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentRefund    PaymentStatus = "REFUND"
)

var PaymentStatuses = []PaymentStatus{PaymentPending, PaymentPaid, PaymentCancelled, PaymentRefund}

// IsTerminal reports whether no further payment transition is permitted.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentPaid || s == PaymentCancelled || s == PaymentRefund
}

type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
)

var validNextOrderStatus = map[OrderStatus]map[OrderStatus]bool{
	OrderPending:    {},
	OrderProcessing: {OrderShipped: true},
	OrderShipped:    {OrderDelivered: true},
	OrderDelivered:  {},
	OrderCancelled:  {},
}

// CanAdvance covers the fulfilment steps admins drive by hand; payment driven
// changes go through the reconciliation transition table instead.
func CanAdvance(from, to OrderStatus) bool {
	return validNextOrderStatus[from][to]
}

// PaymentEvent is the provider-independent meaning of a payment notification.
type PaymentEvent string

const (
	EventPaid      PaymentEvent = "PAID"
	EventCancelled PaymentEvent = "CANCELLED"
	EventExpired   PaymentEvent = "EXPIRED"
	EventRefunded  PaymentEvent = "REFUNDED"
	EventPending   PaymentEvent = "PENDING"
	EventUnhandled PaymentEvent = "UNHANDLED"
)

var PaymentEvents = []PaymentEvent{EventPaid, EventCancelled, EventExpired, EventRefunded, EventPending, EventUnhandled}

type DiscountKind string

const (
	DiscountSale    DiscountKind = "SALE"
	DiscountVoucher DiscountKind = "VOUCHER"
)

type DiscountValueType string

const (
	ValuePercentage DiscountValueType = "PERCENTAGE"
	ValueFixed      DiscountValueType = "FIXED"
)

type PaymentProvider string

const (
	ProviderMidtrans  PaymentProvider = "MIDTRANS"
	ProviderPaypal    PaymentProvider = "PAYPAL"
	ProviderBraintree PaymentProvider = "BRAINTREE"
)

type PaymentMode string

const (
	ModeSandbox    PaymentMode = "sandbox"
	ModeProduction PaymentMode = "production"
)

type Role string

const (
	RoleOwner Role = "OWNER"
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)
