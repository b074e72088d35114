package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	domain "github.com/mealhub/api/internal/domain"
	"github.com/mealhub/api/internal/payments"
	"github.com/mealhub/api/internal/platform/pagination"
	"github.com/mealhub/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"
	orderEventClaimed       = "order.claimed"
	orderEventCancelled     = "order.cancelled"

	orderIDPrefix = "ord_"

	defaultCurrency = "usd"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the actor does not own the order side it
	// tried to act on.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidState indicates a transition outside the allowed table.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderTaken indicates another shipper claimed the order first, or
	// the order is no longer claimable.
	ErrOrderTaken = errors.New("order: no longer available")
	// ErrShopClosed rejects checkout against a closed shop.
	ErrShopClosed = errors.New("order: shop is closed")
	// ErrCartEmpty rejects checkout of an empty cart group.
	ErrCartEmpty = errors.New("order: cart is empty")
	// ErrProductUnavailable rejects checkout when a cart line's product is
	// gone or switched off.
	ErrProductUnavailable = errors.New("order: product unavailable")
	// ErrVoucherInvalid covers every voucher rejection reason.
	ErrVoucherInvalid = errors.New("order: voucher invalid")
	// ErrShipperProfileIncomplete blocks claims from shippers without the
	// required profile fields.
	ErrShipperProfileIncomplete = errors.New("order: shipper profile incomplete")
	// ErrShipperNotReady blocks claims from shippers whose availability is
	// outside the configured ready-to-work set.
	ErrShipperNotReady = errors.New("order: shipper not ready to work")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders    repositories.OrderRepository
	Carts     repositories.CartRepository
	Shops     repositories.ShopRepository
	Products  repositories.ProductRepository
	Vouchers  repositories.VoucherRepository
	Users     repositories.UserRepository
	Addresses repositories.AddressRepository
	Counters  repositories.CounterRepository

	Transitions *domain.StateMachine
	Payments    payments.Processor
	Events      OrderEventPublisher

	// ReadyStatuses is the availability allow-list a shipper must be in
	// before claiming orders. Empty means only "available".
	ReadyStatuses []domain.ShipperAvailability

	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      *zap.Logger
}

type orderService struct {
	orders    repositories.OrderRepository
	carts     repositories.CartRepository
	shops     repositories.ShopRepository
	products  repositories.ProductRepository
	vouchers  repositories.VoucherRepository
	users     repositories.UserRepository
	addresses repositories.AddressRepository
	counters  repositories.CounterRepository

	transitions *domain.StateMachine
	payments    payments.Processor
	events      OrderEventPublisher

	readyStatuses map[domain.ShipperAvailability]struct{}

	currency string
	clock    func() time.Time
	newID    func() string
	logger   *zap.Logger
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("order service: order repository is required")
	case deps.Carts == nil:
		return nil, errors.New("order service: cart repository is required")
	case deps.Shops == nil:
		return nil, errors.New("order service: shop repository is required")
	case deps.Products == nil:
		return nil, errors.New("order service: product repository is required")
	case deps.Users == nil:
		return nil, errors.New("order service: user repository is required")
	case deps.Addresses == nil:
		return nil, errors.New("order service: address repository is required")
	case deps.Counters == nil:
		return nil, errors.New("order service: counter repository is required")
	}

	transitions := deps.Transitions
	if transitions == nil {
		transitions = domain.NewStateMachine(nil)
	}
	processor := deps.Payments
	if processor == nil {
		processor = payments.NewNoopProcessor(deps.Logger)
	}
	currency := strings.TrimSpace(deps.Currency)
	if currency == "" {
		currency = defaultCurrency
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return strings.ToLower(ulid.Make().String()) }
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ready := deps.ReadyStatuses
	if len(ready) == 0 {
		ready = []domain.ShipperAvailability{domain.ShipperAvailable}
	}
	readySet := make(map[domain.ShipperAvailability]struct{}, len(ready))
	for _, availability := range ready {
		readySet[availability] = struct{}{}
	}

	return &orderService{
		orders:        deps.Orders,
		carts:         deps.Carts,
		shops:         deps.Shops,
		products:      deps.Products,
		vouchers:      deps.Vouchers,
		users:         deps.Users,
		addresses:     deps.Addresses,
		counters:      deps.Counters,
		transitions:   transitions,
		payments:      processor,
		events:        deps.Events,
		readyStatuses: readySet,
		currency:      currency,
		clock:         clock,
		newID:         newID,
		logger:        logger,
	}, nil
}

// CreateOrder checks out one shop's cart group. Prices are copied from the
// cart lines, never from the live catalog; the document write, cart clear
// and voucher consumption commit in a single transaction.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	if err := validateCreateCommand(cmd); err != nil {
		return domain.Order{}, err
	}
	now := s.clock()

	customer, err := s.users.FindByID(ctx, cmd.CustomerID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if customer.Role != domain.RoleCustomer {
		return domain.Order{}, fmt.Errorf("%w: only customers may place orders", ErrOrderForbidden)
	}

	shop, err := s.shops.FindByID(ctx, cmd.ShopID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if !shop.Open {
		return domain.Order{}, ErrShopClosed
	}

	group, err := s.carts.GetGroup(ctx, cmd.CustomerID, cmd.ShopID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if len(group.Items) == 0 {
		return domain.Order{}, ErrCartEmpty
	}

	if err := s.checkCatalogAvailability(ctx, group); err != nil {
		return domain.Order{}, err
	}

	address, err := s.addresses.FindByID(ctx, cmd.AddressID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if address.CustomerID != cmd.CustomerID {
		return domain.Order{}, fmt.Errorf("%w: address belongs to another customer", ErrOrderForbidden)
	}

	subtotal := group.Subtotal()

	var (
		voucher        *domain.Voucher
		voucherConsume *repositories.VoucherConsume
		discount       int64
	)
	if code := strings.TrimSpace(cmd.VoucherCode); code != "" {
		found, err := s.vouchers.FindByCode(ctx, code)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return domain.Order{}, fmt.Errorf("%w: unknown code", ErrVoucherInvalid)
			}
			return domain.Order{}, s.mapRepositoryError(err)
		}
		if err := validateVoucher(found, subtotal, now); err != nil {
			return domain.Order{}, err
		}
		voucher = &found
		discount = found.DiscountFor(subtotal)
		voucherConsume = &repositories.VoucherConsume{VoucherID: found.ID, Subtotal: subtotal}
	}

	// Delivery is free for the customer. The shop funds the shipper payout
	// out of its own fee, so it never enters the charged total.
	total := subtotal - discount
	if total < 0 {
		total = 0
	}

	orderID := orderIDPrefix + s.newID()
	orderNumber, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	order := domain.Order{
		ID:          orderID,
		OrderNumber: orderNumber,
		CustomerID:  cmd.CustomerID,
		ShopID:      cmd.ShopID,
		// Explicit nil: the document layer persists the unassigned marker
		// as a stored null so availability filters can match it.
		ShipperID: nil,
		Customer:  domain.PartySnapshot{Name: customer.Name, Phone: customer.Phone},
		Shop: domain.ShopSnapshot{
			Name:    shop.Name,
			Phone:   shop.Phone,
			Address: shop.Address,
		},
		Subtotal:      subtotal,
		ShipFee:       0,
		ShipperPayout: shop.ShipperFee,
		Discount:      discount,
		Total:         total,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusUnpaid,
		PaymentMethod: cmd.PaymentMethod,
		Address:       address.Snapshot(cmd.DeliveryNote),
		DeliveryNote:  cmd.DeliveryNote,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if voucher != nil {
		order.VoucherID = &voucher.ID
		order.VoucherCode = &voucher.Code
	}

	cartItemIDs := make([]string, 0, len(group.Items))
	for _, item := range group.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.UnitPrice * int64(item.Quantity),
		})
		cartItemIDs = append(cartItemIDs, item.ID)
	}

	if cmd.PaymentMethod == domain.PaymentMethodCard {
		charge, err := s.payments.Charge(ctx, payments.ChargeRequest{
			OrderID:         orderID,
			CustomerID:      cmd.CustomerID,
			Amount:          total,
			Currency:        s.currency,
			PaymentMethodID: cmd.PaymentMethodID,
			IdempotencyKey:  "charge_" + orderID,
		})
		if err != nil {
			return domain.Order{}, err
		}
		order.PaymentStatus = domain.PaymentStatusPaid
		order.PaymentRef = &charge.Reference
	}

	created, err := s.orders.CreateOrderAndClearCart(ctx, repositories.CreateOrderTx{
		Order:       order,
		CartItemIDs: cartItemIDs,
		Voucher:     voucherConsume,
	})
	if err != nil {
		var voucherErr *repositories.VoucherError
		if errors.As(err, &voucherErr) {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrVoucherInvalid, voucherErr.Message)
		}
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.logger.Info("order created",
		zap.String("order_id", created.ID),
		zap.String("order_number", created.OrderNumber),
		zap.String("shop_id", created.ShopID),
		zap.Int64("total", created.Total),
	)
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       created.ID,
		OrderNumber:   created.OrderNumber,
		ShopID:        created.ShopID,
		CustomerID:    created.CustomerID,
		CurrentStatus: string(created.Status),
		ActorID:       cmd.CustomerID,
		OccurredAt:    now,
	})
	return created, nil
}

// GetOrder returns the order when the actor is its customer, the owner of
// its shop, or its assigned shipper. Counterparty contact fields are
// refreshed from live profiles when they still resolve.
func (s *orderService) GetOrder(ctx context.Context, actorUID, orderID string) (domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if !s.actorMayView(ctx, actorUID, order) {
		return domain.Order{}, ErrOrderForbidden
	}

	refreshed := []domain.Order{order}
	s.refreshSnapshots(ctx, refreshed)
	return refreshed[0], nil
}

// refreshSnapshots overwrites the denormalized contact snapshots with live
// profile data, resolving every party across the slice in one grouped
// lookup. Profiles that no longer resolve keep their stored snapshot.
func (s *orderService) refreshSnapshots(ctx context.Context, orders []domain.Order) {
	if len(orders) == 0 {
		return
	}
	seen := make(map[string]struct{}, len(orders)*2)
	ids := make([]string, 0, len(orders)*2)
	collect := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, order := range orders {
		collect(order.CustomerID)
		if order.ShipperID != nil {
			collect(*order.ShipperID)
		}
	}

	profiles, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		// Stale snapshots beat a failed read.
		s.logger.Warn("order profile refresh failed", zap.Error(err))
		return
	}
	for i := range orders {
		if customer, ok := profiles[orders[i].CustomerID]; ok {
			orders[i].Customer = domain.PartySnapshot{Name: customer.Name, Phone: customer.Phone}
		}
		if orders[i].ShipperID != nil {
			if shipper, ok := profiles[*orders[i].ShipperID]; ok {
				orders[i].Shipper = &domain.PartySnapshot{Name: shipper.Name, Phone: shipper.Phone}
			}
		}
	}
}

func (s *orderService) ListCustomerOrders(ctx context.Context, customerID string, query OrderListQuery) (domain.Page[domain.Order], error) {
	return s.list(ctx, repositories.OrderListFilter{CustomerID: customerID}, query)
}

// CancelOrder is the customer-side cancellation; legality comes from the
// policy allow-list baked into the transition table.
func (s *orderService) CancelOrder(ctx context.Context, customerID string, cmd CancelOrderCommand) (domain.Order, error) {
	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if order.CustomerID != customerID {
		return domain.Order{}, ErrOrderForbidden
	}
	return s.cancel(ctx, order, domain.ActorCustomer, domain.CancelledByCustomer, customerID, cmd.Reason)
}

func (s *orderService) ListShopOrders(ctx context.Context, ownerID string, query OrderListQuery) (domain.Page[domain.Order], error) {
	shop, err := s.shops.FindByOwner(ctx, ownerID)
	if err != nil {
		return domain.Page[domain.Order]{}, s.mapRepositoryError(err)
	}
	return s.list(ctx, repositories.OrderListFilter{ShopID: shop.ID}, query)
}

func (s *orderService) ConfirmOrder(ctx context.Context, ownerID, orderID string) (domain.Order, error) {
	return s.ownerTransition(ctx, ownerID, orderID, domain.OrderStatusConfirmed, "confirmedAt")
}

func (s *orderService) MarkPreparing(ctx context.Context, ownerID, orderID string) (domain.Order, error) {
	return s.ownerTransition(ctx, ownerID, orderID, domain.OrderStatusPreparing, "preparingAt")
}

// MarkReady publishes the order into the shipper availability pool. The
// document already carries the explicit-null assignment marker, so no
// visibility write is needed beyond the status flip.
func (s *orderService) MarkReady(ctx context.Context, ownerID, orderID string) (domain.Order, error) {
	return s.ownerTransition(ctx, ownerID, orderID, domain.OrderStatusReady, "readyAt")
}

func (s *orderService) OwnerCancelOrder(ctx context.Context, ownerID string, cmd CancelOrderCommand) (domain.Order, error) {
	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if err := s.requireShopOwnership(ctx, ownerID, order); err != nil {
		return domain.Order{}, err
	}
	return s.cancel(ctx, order, domain.ActorOwner, domain.CancelledByOwner, ownerID, cmd.Reason)
}

// ListAvailableOrders is the shared claim pool: ready orders whose stored
// assignment field is an explicit null. Shippers attached to a shop see only
// that shop's pool; freelancers see every shop.
func (s *orderService) ListAvailableOrders(ctx context.Context, shipperID string, query OrderListQuery) (domain.Page[domain.Order], error) {
	shipper, err := s.requireShipper(ctx, shipperID)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	return s.list(ctx, repositories.OrderListFilter{
		ShopID:         shipper.ShopID,
		UnassignedOnly: true,
	}, query)
}

func (s *orderService) ListShipperOrders(ctx context.Context, shipperID string, query OrderListQuery) (domain.Page[domain.Order], error) {
	return s.list(ctx, repositories.OrderListFilter{ShipperID: shipperID}, query)
}

// AcceptOrder claims an order for a shipper. The decisive check runs inside
// the repository transaction; the reads here only produce friendly errors
// on the common paths.
func (s *orderService) AcceptOrder(ctx context.Context, shipperID, orderID string) (domain.Order, error) {
	shipper, err := s.requireShipper(ctx, shipperID)
	if err != nil {
		return domain.Order{}, err
	}
	if !shipper.ProfileComplete() {
		return domain.Order{}, ErrShipperProfileIncomplete
	}
	if _, ok := s.readyStatuses[shipper.Availability]; !ok {
		return domain.Order{}, fmt.Errorf("%w: availability is %q", ErrShipperNotReady, shipper.Availability)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if order.Status != domain.OrderStatusReady || order.Claimed() {
		return domain.Order{}, ErrOrderTaken
	}

	now := s.clock()
	claimed, err := s.orders.AcceptOrderAtomically(ctx, orderID, repositories.ShipperClaim{
		ShipperID: shipperID,
		Snapshot:  domain.PartySnapshot{Name: shipper.Name, Phone: shipper.Phone},
		ClaimedAt: now,
	})
	if err != nil {
		if errors.Is(err, repositories.ErrOrderTaken) {
			return domain.Order{}, ErrOrderTaken
		}
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if err := s.users.SetAvailability(ctx, shipperID, domain.ShipperDelivering); err != nil {
		s.logger.Warn("shipper availability update failed",
			zap.String("shipper_id", shipperID), zap.Error(err))
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventClaimed,
		OrderID:       claimed.ID,
		OrderNumber:   claimed.OrderNumber,
		ShopID:        claimed.ShopID,
		CustomerID:    claimed.CustomerID,
		ShipperID:     shipperID,
		CurrentStatus: string(claimed.Status),
		ActorID:       shipperID,
		OccurredAt:    now,
	})
	return claimed, nil
}

func (s *orderService) MarkShipping(ctx context.Context, shipperID, orderID string) (domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if err := requireAssignedShipper(order, shipperID); err != nil {
		return domain.Order{}, err
	}
	return s.transition(ctx, order, domain.OrderStatusShipping, domain.ActorShipper, shipperID, repositories.OrderUpdate{
		Timestamps: map[string]time.Time{"shippingAt": s.clock()},
	})
}

// MarkDelivered completes the delivery. Cash-on-delivery orders settle in
// the same document write, so a delivered order is never observable unpaid.
func (s *orderService) MarkDelivered(ctx context.Context, shipperID, orderID string) (domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if err := requireAssignedShipper(order, shipperID); err != nil {
		return domain.Order{}, err
	}

	update := repositories.OrderUpdate{
		Timestamps: map[string]time.Time{"deliveredAt": s.clock()},
		MarkPaid:   order.PaymentMethod == domain.PaymentMethodCOD && order.PaymentStatus == domain.PaymentStatusUnpaid,
	}
	delivered, err := s.transition(ctx, order, domain.OrderStatusDelivered, domain.ActorShipper, shipperID, update)
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.users.SetAvailability(ctx, shipperID, domain.ShipperAvailable); err != nil {
		s.logger.Warn("shipper availability update failed",
			zap.String("shipper_id", shipperID), zap.Error(err))
	}
	return delivered, nil
}

func (s *orderService) ownerTransition(ctx context.Context, ownerID, orderID string, target domain.OrderStatus, stampField string) (domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if err := s.requireShopOwnership(ctx, ownerID, order); err != nil {
		return domain.Order{}, err
	}
	return s.transition(ctx, order, target, domain.ActorOwner, ownerID, repositories.OrderUpdate{
		Timestamps: map[string]time.Time{stampField: s.clock()},
	})
}

func (s *orderService) cancel(ctx context.Context, order domain.Order, actor domain.Actor, party domain.CancelParty, actorID, reason string) (domain.Order, error) {
	if err := s.transitions.ValidateTransition(order.Status, domain.OrderStatusCancelled, actor); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidState, err)
	}

	update := repositories.OrderUpdate{
		Timestamps:  map[string]time.Time{"cancelledAt": s.clock()},
		CancelledBy: &party,
	}
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		update.CancelReason = &trimmed
	}

	if order.PaymentStatus == domain.PaymentStatusPaid {
		ref := ""
		if order.PaymentRef != nil {
			ref = *order.PaymentRef
		}
		if _, err := s.payments.Refund(ctx, payments.RefundRequest{
			OrderID:    order.ID,
			PaymentRef: ref,
			Amount:     order.Total,
			Reason:     refundReason(party),
		}); err != nil {
			return domain.Order{}, fmt.Errorf("order: refund failed: %w", err)
		}
		update.MarkRefunded = true
	}

	cancelled, err := s.transition(ctx, order, domain.OrderStatusCancelled, actor, actorID, update)
	if err != nil {
		return domain.Order{}, err
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventCancelled,
		OrderID:        cancelled.ID,
		OrderNumber:    cancelled.OrderNumber,
		ShopID:         cancelled.ShopID,
		CustomerID:     cancelled.CustomerID,
		PreviousStatus: string(order.Status),
		CurrentStatus:  string(cancelled.Status),
		ActorID:        actorID,
		OccurredAt:     s.clock(),
	})
	return cancelled, nil
}

// transition validates against the table, applies the partial update and
// emits the status-change event.
func (s *orderService) transition(ctx context.Context, order domain.Order, target domain.OrderStatus, actor domain.Actor, actorID string, update repositories.OrderUpdate) (domain.Order, error) {
	if err := s.transitions.ValidateTransition(order.Status, target, actor); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidState, err)
	}

	update.Status = target
	update.UpdatedAt = s.clock()

	updated, err := s.orders.ApplyUpdate(ctx, order.ID, update)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.logger.Info("order status changed",
		zap.String("order_id", order.ID),
		zap.String("from", string(order.Status)),
		zap.String("to", string(target)),
		zap.String("actor", string(actor)),
	)
	if target != domain.OrderStatusCancelled {
		shipperID := ""
		if updated.ShipperID != nil {
			shipperID = *updated.ShipperID
		}
		s.publishEvent(ctx, OrderEvent{
			Type:           orderEventStatusChanged,
			OrderID:        updated.ID,
			OrderNumber:    updated.OrderNumber,
			ShopID:         updated.ShopID,
			CustomerID:     updated.CustomerID,
			ShipperID:      shipperID,
			PreviousStatus: string(order.Status),
			CurrentStatus:  string(target),
			ActorID:        actorID,
			OccurredAt:     update.UpdatedAt,
		})
	}
	return updated, nil
}

func (s *orderService) list(ctx context.Context, filter repositories.OrderListFilter, query OrderListQuery) (domain.Page[domain.Order], error) {
	params := pagination.Must(query.Page)
	filter.Status = query.Status
	filter.Page = params.Page
	filter.Limit = params.Limit

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.Page[domain.Order]{}, s.mapRepositoryError(err)
	}
	s.refreshSnapshots(ctx, page.Items)
	return page, nil
}

func (s *orderService) checkCatalogAvailability(ctx context.Context, group domain.CartGroup) error {
	ids := make([]string, 0, len(group.Items))
	for _, item := range group.Items {
		ids = append(ids, item.ProductID)
	}

	catalog, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	for _, item := range group.Items {
		product, ok := catalog[item.ProductID]
		if !ok || product.Deleted || !product.Available {
			return fmt.Errorf("%w: %s", ErrProductUnavailable, item.ProductName)
		}
	}
	return nil
}

func (s *orderService) requireShipper(ctx context.Context, shipperID string) (domain.User, error) {
	user, err := s.users.FindByID(ctx, shipperID)
	if err != nil {
		return domain.User{}, s.mapRepositoryError(err)
	}
	if user.Role != domain.RoleShipper {
		return domain.User{}, fmt.Errorf("%w: shipper role required", ErrOrderForbidden)
	}
	return user, nil
}

func (s *orderService) requireShopOwnership(ctx context.Context, ownerID string, order domain.Order) error {
	shop, err := s.shops.FindByOwner(ctx, ownerID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return ErrOrderForbidden
		}
		return s.mapRepositoryError(err)
	}
	if shop.ID != order.ShopID {
		return ErrOrderForbidden
	}
	return nil
}

func (s *orderService) actorMayView(ctx context.Context, actorUID string, order domain.Order) bool {
	if order.CustomerID == actorUID {
		return true
	}
	if order.ShipperID != nil && *order.ShipperID == actorUID {
		return true
	}
	shop, err := s.shops.FindByOwner(ctx, actorUID)
	return err == nil && shop.ID == order.ShopID
}

// refundReason records which side of the order triggered the refund.
func refundReason(party domain.CancelParty) string {
	if party == domain.CancelledByOwner {
		return "cancelled_by_shop"
	}
	return "requested_by_customer"
}

func requireAssignedShipper(order domain.Order, shipperID string) error {
	if order.ShipperID == nil || *order.ShipperID != shipperID {
		return ErrOrderForbidden
	}
	return nil
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, "orders")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("MH-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger.Warn("order event publish failed",
			zap.String("type", event.Type),
			zap.String("order_id", event.OrderID),
			zap.Error(err),
		)
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func validateCreateCommand(cmd CreateOrderCommand) error {
	switch {
	case strings.TrimSpace(cmd.CustomerID) == "":
		return fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	case strings.TrimSpace(cmd.ShopID) == "":
		return fmt.Errorf("%w: shop id is required", ErrOrderInvalidInput)
	case strings.TrimSpace(cmd.AddressID) == "":
		return fmt.Errorf("%w: address id is required", ErrOrderInvalidInput)
	}
	switch cmd.PaymentMethod {
	case domain.PaymentMethodCOD:
	case domain.PaymentMethodCard:
		if strings.TrimSpace(cmd.PaymentMethodID) == "" {
			return fmt.Errorf("%w: payment method id is required for card payments", ErrOrderInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}
	return nil
}

func validateVoucher(voucher domain.Voucher, subtotal int64, now time.Time) error {
	switch {
	case !voucher.Active:
		return fmt.Errorf("%w: no longer active", ErrVoucherInvalid)
	case voucher.ExpiresAt != nil && voucher.ExpiresAt.Before(now):
		return fmt.Errorf("%w: expired", ErrVoucherInvalid)
	case voucher.UsageLimit > 0 && voucher.UsedCount >= voucher.UsageLimit:
		return fmt.Errorf("%w: usage limit reached", ErrVoucherInvalid)
	case subtotal < voucher.MinSubtotal:
		return fmt.Errorf("%w: subtotal below minimum", ErrVoucherInvalid)
	}
	return nil
}
