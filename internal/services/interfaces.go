package services

import (
	"context"
	"time"

	domain "github.com/mealhub/api/internal/domain"
	"github.com/mealhub/api/internal/platform/pagination"
)

// CreateOrderCommand captures the customer's checkout of one shop's cart
// group.
type CreateOrderCommand struct {
	CustomerID      string
	ShopID          string
	AddressID       string
	PaymentMethod   domain.PaymentMethod
	PaymentMethodID string
	VoucherCode     string
	DeliveryNote    string
}

// OrderListQuery narrows a list endpoint to statuses plus a page window.
type OrderListQuery struct {
	Status []domain.OrderStatus
	Page   pagination.Params
}

// CancelOrderCommand carries a cancellation request from either side.
type CancelOrderCommand struct {
	OrderID string
	Reason  string
}

// OrderService coordinates the order lifecycle across the three actor
// surfaces. All status changes pass through the transition table; the two
// multi-document invariants live behind named repository operations.
type OrderService interface {
	// Customer surface.
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, actorUID, orderID string) (domain.Order, error)
	ListCustomerOrders(ctx context.Context, customerID string, query OrderListQuery) (domain.Page[domain.Order], error)
	CancelOrder(ctx context.Context, customerID string, cmd CancelOrderCommand) (domain.Order, error)

	// Shop-owner surface.
	ListShopOrders(ctx context.Context, ownerID string, query OrderListQuery) (domain.Page[domain.Order], error)
	ConfirmOrder(ctx context.Context, ownerID, orderID string) (domain.Order, error)
	MarkPreparing(ctx context.Context, ownerID, orderID string) (domain.Order, error)
	MarkReady(ctx context.Context, ownerID, orderID string) (domain.Order, error)
	OwnerCancelOrder(ctx context.Context, ownerID string, cmd CancelOrderCommand) (domain.Order, error)

	// Shipper surface.
	ListAvailableOrders(ctx context.Context, shipperID string, query OrderListQuery) (domain.Page[domain.Order], error)
	ListShipperOrders(ctx context.Context, shipperID string, query OrderListQuery) (domain.Page[domain.Order], error)
	AcceptOrder(ctx context.Context, shipperID, orderID string) (domain.Order, error)
	MarkShipping(ctx context.Context, shipperID, orderID string) (domain.Order, error)
	MarkDelivered(ctx context.Context, shipperID, orderID string) (domain.Order, error)
}

// BackfillReport summarises one repair run together with the diagnostic
// counts observed afterwards.
type BackfillReport struct {
	Scanned   int
	Updated   int
	Failed    int
	StartedAt time.Time
	Duration  time.Duration
}

// AvailabilityReport compares a shop's active order count against what the
// availability query can see. Hidden > 0 means documents are missing the
// assignment field and need repair.
type AvailabilityReport struct {
	ShopID    string
	Active    int64
	Available int64
	Hidden    int64
}

// MaintenanceService exposes the operational repair surface.
type MaintenanceService interface {
	RunShipperBackfill(ctx context.Context) (BackfillReport, error)
	AvailabilityDiagnostic(ctx context.Context, shopID string) (AvailabilityReport, error)
}

// OrderEvent is the message emitted on lifecycle changes for downstream
// consumers (notifications, analytics).
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	ShopID         string
	CustomerID     string
	ShipperID      string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
}

// OrderEventPublisher publishes order domain events.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}
