package domain

import (
	"time"
)

// CartItem is a single product entry in a customer's cart. Unit prices
// are captured when the item is added; order creation copies them
// verbatim (pricing lock).
type CartItem struct {
	ID          string
	CustomerID  string
	ShopID      string
	ProductID   string
	ProductName string
	UnitPrice   int64
	Quantity    int
	AddedAt     time.Time
}

// CartGroup bundles a customer's cart items for a single shop. The group
// is consumed atomically when an order is created from it.
type CartGroup struct {
	CustomerID string
	ShopID     string
	Items      []CartItem
}

// Subtotal sums the locked line prices of the group.
func (g CartGroup) Subtotal() int64 {
	var total int64
	for _, item := range g.Items {
		total += item.UnitPrice * int64(item.Quantity)
	}
	return total
}

// Shop holds the subset of shop state the order core depends on.
type Shop struct {
	ID         string
	OwnerID    string
	Name       string
	Phone      string
	Address    string
	Open       bool
	ShipperFee int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Product carries catalog availability state. The live Price is consulted
// only for availability display, never written back into orders.
type Product struct {
	ID        string
	ShopID    string
	Name      string
	Price     int64
	Available bool
	Deleted   bool
}

// Voucher models the discount contract consumed at order creation.
type Voucher struct {
	ID          string
	Code        string
	Amount      int64
	Percent     int
	MinSubtotal int64
	UsageLimit  int
	UsedCount   int
	Active      bool
	ExpiresAt   *time.Time
}

// DiscountFor computes the discount this voucher grants for a subtotal.
// Percent vouchers are floored to whole minor units; a fixed Amount wins
// when both are set.
func (v Voucher) DiscountFor(subtotal int64) int64 {
	var discount int64
	switch {
	case v.Amount > 0:
		discount = v.Amount
	case v.Percent > 0:
		discount = subtotal * int64(v.Percent) / 100
	}
	if discount > subtotal {
		discount = subtotal
	}
	return discount
}

// UserRole distinguishes the actor surfaces.
type UserRole string

const (
	RoleCustomer UserRole = "customer"
	RoleOwner    UserRole = "owner"
	RoleShipper  UserRole = "shipper"
)

// ShipperAvailability captures a delivery agent's self-reported work state.
type ShipperAvailability string

const (
	ShipperAvailable   ShipperAvailability = "available"
	ShipperDelivering  ShipperAvailability = "delivering"
	ShipperUnavailable ShipperAvailability = "unavailable"
)

// User is the profile record shared by all three actor roles.
type User struct {
	ID           string
	Role         UserRole
	Name         string
	Phone        string
	ShopID       string
	Availability ShipperAvailability
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProfileComplete reports whether a shipper profile carries the fields
// required before it may claim orders.
func (u User) ProfileComplete() bool {
	return u.Name != "" && u.Phone != ""
}

// Address is a stored address-book entry owned by a customer.
type Address struct {
	ID         string
	CustomerID string
	Recipient  string
	Phone      string
	Line       string
	Ward       string
	District   string
	City       string
	Default    bool
	CreatedAt  time.Time
}

// Snapshot converts the stored entry into the delivery snapshot embedded
// on an order.
func (a Address) Snapshot(note string) DeliveryAddress {
	return DeliveryAddress{
		Recipient: a.Recipient,
		Phone:     a.Phone,
		Line:      a.Line,
		Ward:      a.Ward,
		District:  a.District,
		City:      a.City,
		Note:      note,
	}
}
