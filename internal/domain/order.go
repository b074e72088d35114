package domain

import (
	"time"
)

// OrderStatus enumerates lifecycle states of an order.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed and awaits shop confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the shop accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPreparing indicates the shop is preparing the food.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusReady indicates the order is prepared and awaits a shipper claim.
	OrderStatusReady OrderStatus = "ready"
	// OrderStatusShipping indicates the assigned shipper picked the order up.
	OrderStatusShipping OrderStatus = "shipping"
	// OrderStatusDelivered indicates the order reached the customer. Terminal.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus tracks whether the order has been paid for.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PaymentMethod enumerates supported payment channels.
type PaymentMethod string

const (
	PaymentMethodCOD  PaymentMethod = "cod"
	PaymentMethodCard PaymentMethod = "card"
)

// CancelParty identifies which side cancelled an order.
type CancelParty string

const (
	CancelledByCustomer CancelParty = "customer"
	CancelledByOwner    CancelParty = "owner"
)

// OrderItem is an immutable line-item snapshot copied from the cart at
// creation time. Prices are locked here and never re-derived from the
// live catalog.
type OrderItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   int64
	Subtotal    int64
}

// PartySnapshot denormalizes display fields of a customer or shipper so
// list endpoints do not fan out per-row profile lookups.
type PartySnapshot struct {
	Name  string
	Phone string
}

// ShopSnapshot denormalizes shop display fields onto the order.
type ShopSnapshot struct {
	Name    string
	Phone   string
	Address string
}

// DeliveryAddress is the address snapshot captured at order creation.
type DeliveryAddress struct {
	Recipient string
	Phone     string
	Line      string
	Ward      string
	District  string
	City      string
	Note      string
}

// Order is the central entity coordinated across customer, shop owner,
// shipper and platform.
//
// ShipperID is a pointer on purpose: unassigned orders must carry the
// field as an explicit null in the store, never omit it. Equality
// filters only match explicit values, so an absent field would make the
// order invisible to shipper availability queries.
type Order struct {
	ID          string
	OrderNumber string

	CustomerID string
	ShopID     string
	ShipperID  *string

	Customer PartySnapshot
	Shop     ShopSnapshot
	Shipper  *PartySnapshot

	Items []OrderItem

	Subtotal      int64
	ShipFee       int64
	ShipperPayout int64
	Discount      int64
	Total         int64
	VoucherID     *string
	VoucherCode   *string

	Status        OrderStatus
	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod
	PaymentRef    *string

	Address      DeliveryAddress
	DeliveryNote string

	ConfirmedAt  *time.Time
	PreparingAt  *time.Time
	ReadyAt      *time.Time
	ClaimedAt    *time.Time
	ShippingAt   *time.Time
	DeliveredAt  *time.Time
	CancelledAt  *time.Time
	CancelReason *string
	CancelledBy  *CancelParty

	ReviewID   *string
	ReviewedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Claimed reports whether a shipper has won the order.
func (o Order) Claimed() bool {
	return o.ShipperID != nil && *o.ShipperID != ""
}

// Terminal reports whether the order can no longer change state.
func (o Order) Terminal() bool {
	return o.Status == OrderStatusDelivered || o.Status == OrderStatusCancelled
}

// Page is the page-based list envelope returned by every list operation.
type Page[T any] struct {
	Items      []T
	Page       int
	Limit      int
	Total      int64
	TotalPages int
	// Approximate is set when the total was derived from a capped
	// degraded-mode fetch instead of a server-side count.
	Approximate bool
}

// NewPage assembles a Page and derives TotalPages from the total and limit.
func NewPage[T any](items []T, page, limit int, total int64) Page[T] {
	p := Page[T]{Items: items, Page: page, Limit: limit, Total: total}
	if limit > 0 {
		p.TotalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return p
}
