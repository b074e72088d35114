package repositories

import (
	"context"
	"errors"
	"time"

	domain "github.com/mealhub/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsFailedPrecondition() bool
	IsUnavailable() bool
}

// ErrOrderTaken is returned by AcceptOrderAtomically when another shipper
// committed the claim first.
var ErrOrderTaken = errors.New("repositories: order already taken")

// VoucherConsume instructs the creation transaction to re-validate and
// consume a voucher as part of the atomic commit.
type VoucherConsume struct {
	VoucherID string
	// Subtotal is re-checked against the voucher's minimum inside the
	// transaction so a stale service-level validation cannot slip through.
	Subtotal int64
}

// VoucherError is raised when the in-transaction voucher validation fails;
// the whole creation transaction rolls back.
type VoucherError struct {
	Code    string
	Message string
}

func (e *VoucherError) Error() string { return "voucher: " + e.Message }

// CreateOrderTx bundles the inputs of the atomic order-creation operation.
// The order document write, the cart-group clear, and the optional voucher
// consumption all commit together or not at all.
type CreateOrderTx struct {
	Order       domain.Order
	CartItemIDs []string
	Voucher     *VoucherConsume
}

// ShipperClaim carries the shipper identity and denormalized snapshot
// written by the atomic claim.
type ShipperClaim struct {
	ShipperID string
	Snapshot  domain.PartySnapshot
	ClaimedAt time.Time
}

// OrderListFilter narrows order list queries to one actor scope.
type OrderListFilter struct {
	CustomerID string
	ShopID     string
	ShipperID  string
	// UnassignedOnly matches orders whose shipperId is explicitly null.
	UnassignedOnly bool
	Status         []domain.OrderStatus
	Page           int
	Limit          int
}

// OrderUpdate captures a status-transition write. Fields are applied as a
// partial document update.
type OrderUpdate struct {
	Status       domain.OrderStatus
	Timestamps   map[string]time.Time
	CancelReason *string
	CancelledBy  *domain.CancelParty
	// MarkPaid atomically flips paymentStatus unpaid -> paid; used for
	// cash-on-delivery settlement at the delivery transition.
	MarkPaid bool
	// MarkRefunded records the refund performed on cancellation of a paid order.
	MarkRefunded bool
	UpdatedAt    time.Time
}

// BackfillResult summarises one repair run.
type BackfillResult struct {
	Scanned int
	Updated int
	Errors  []error
}

// OrderRepository is the narrow storage boundary for orders. Only named,
// pre-defined atomic operations are exposed; the orchestration layer never
// sees raw read/write primitives, so atomicity boundaries stay auditable.
type OrderRepository interface {
	// CreateOrderAndClearCart atomically creates the order document,
	// deletes the consumed cart items and, when requested, consumes the
	// voucher. Voucher failures surface as *VoucherError and roll back
	// the entire transaction.
	CreateOrderAndClearCart(ctx context.Context, tx CreateOrderTx) (domain.Order, error)

	// AcceptOrderAtomically performs the first-to-claim-wins assignment:
	// it re-validates (status == ready AND shipperId == null) and writes
	// the claim inside a single transaction. Losing the race returns
	// ErrOrderTaken. Status remains ready after a successful claim.
	AcceptOrderAtomically(ctx context.Context, orderID string, claim ShipperClaim) (domain.Order, error)

	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ApplyUpdate(ctx context.Context, orderID string, update OrderUpdate) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)

	// CountActive and CountAvailable back the backfill diagnostic: a gap
	// between them for the same shop signals records invisible to the
	// availability query.
	CountActive(ctx context.Context, shopID string, active []domain.OrderStatus) (int64, error)
	CountAvailable(ctx context.Context, shopID string) (int64, error)

	// BackfillShipperField writes an explicit null shipperId to active
	// orders whose documents lack the field entirely. Idempotent.
	BackfillShipperField(ctx context.Context, active []domain.OrderStatus, batchSize int) (BackfillResult, error)
}

// CartRepository exposes the read-grouped view and nothing else; clearing
// happens only inside the order-creation transaction.
type CartRepository interface {
	GetGroup(ctx context.Context, customerID, shopID string) (domain.CartGroup, error)
}

// ShopRepository looks up shop state consumed by order creation and the
// owner surface.
type ShopRepository interface {
	FindByID(ctx context.Context, shopID string) (domain.Shop, error)
	FindByOwner(ctx context.Context, ownerID string) (domain.Shop, error)
}

// ProductRepository checks catalog availability. Live prices are never
// copied into orders.
type ProductRepository interface {
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
}

// VoucherRepository resolves voucher codes ahead of the creation
// transaction; consumption happens inside CreateOrderAndClearCart.
type VoucherRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Voucher, error)
}

// UserRepository resolves actor profiles and batch display snapshots.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByIDs(ctx context.Context, userIDs []string) (map[string]domain.User, error)
	SetAvailability(ctx context.Context, userID string, availability domain.ShipperAvailability) error
}

// AddressRepository resolves stored delivery addresses with ownership data.
type AddressRepository interface {
	FindByID(ctx context.Context, addressID string) (domain.Address, error)
}

// CounterRepository hands out monotonically increasing sequence values,
// used for human-readable order numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string) (int64, error)
}
