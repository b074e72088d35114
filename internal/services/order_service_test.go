package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/mealhub/api/internal/domain"
	"github.com/mealhub/api/internal/payments"
	"github.com/mealhub/api/internal/repositories"
)

type stubOrderRepo struct {
	createFn   func(context.Context, repositories.CreateOrderTx) (domain.Order, error)
	acceptFn   func(context.Context, string, repositories.ShipperClaim) (domain.Order, error)
	findFn     func(context.Context, string) (domain.Order, error)
	applyFn    func(context.Context, string, repositories.OrderUpdate) (domain.Order, error)
	listFn     func(context.Context, repositories.OrderListFilter) (domain.Page[domain.Order], error)
	backfillFn func(context.Context, []domain.OrderStatus, int) (repositories.BackfillResult, error)
}

func (s *stubOrderRepo) CreateOrderAndClearCart(ctx context.Context, tx repositories.CreateOrderTx) (domain.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, tx)
	}
	return tx.Order, nil
}

func (s *stubOrderRepo) AcceptOrderAtomically(ctx context.Context, orderID string, claim repositories.ShipperClaim) (domain.Order, error) {
	if s.acceptFn != nil {
		return s.acceptFn(ctx, orderID, claim)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) ApplyUpdate(ctx context.Context, orderID string, update repositories.OrderUpdate) (domain.Order, error) {
	if s.applyFn != nil {
		return s.applyFn(ctx, orderID, update)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.Page[domain.Order]{}, nil
}

func (s *stubOrderRepo) CountActive(context.Context, string, []domain.OrderStatus) (int64, error) {
	return 0, nil
}

func (s *stubOrderRepo) CountAvailable(context.Context, string) (int64, error) {
	return 0, nil
}

func (s *stubOrderRepo) BackfillShipperField(ctx context.Context, active []domain.OrderStatus, batchSize int) (repositories.BackfillResult, error) {
	if s.backfillFn != nil {
		return s.backfillFn(ctx, active, batchSize)
	}
	return repositories.BackfillResult{}, nil
}

type stubCartRepo struct {
	groupFn func(context.Context, string, string) (domain.CartGroup, error)
}

func (s *stubCartRepo) GetGroup(ctx context.Context, customerID, shopID string) (domain.CartGroup, error) {
	if s.groupFn != nil {
		return s.groupFn(ctx, customerID, shopID)
	}
	return domain.CartGroup{}, nil
}

type stubShopRepo struct {
	findFn  func(context.Context, string) (domain.Shop, error)
	ownerFn func(context.Context, string) (domain.Shop, error)
}

func (s *stubShopRepo) FindByID(ctx context.Context, shopID string) (domain.Shop, error) {
	if s.findFn != nil {
		return s.findFn(ctx, shopID)
	}
	return domain.Shop{}, errors.New("not implemented")
}

func (s *stubShopRepo) FindByOwner(ctx context.Context, ownerID string) (domain.Shop, error) {
	if s.ownerFn != nil {
		return s.ownerFn(ctx, ownerID)
	}
	return domain.Shop{}, errors.New("not implemented")
}

type stubProductRepo struct {
	findFn func(context.Context, []string) (map[string]domain.Product, error)
}

func (s *stubProductRepo) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	if s.findFn != nil {
		return s.findFn(ctx, ids)
	}
	return map[string]domain.Product{}, nil
}

type stubVoucherRepo struct {
	findFn func(context.Context, string) (domain.Voucher, error)
}

func (s *stubVoucherRepo) FindByCode(ctx context.Context, code string) (domain.Voucher, error) {
	if s.findFn != nil {
		return s.findFn(ctx, code)
	}
	return domain.Voucher{}, errors.New("not implemented")
}

type stubUserRepo struct {
	mu           sync.Mutex
	users        map[string]domain.User
	availability map[string]domain.ShipperAvailability
	batchLookups int
}

func (s *stubUserRepo) FindByID(_ context.Context, userID string) (domain.User, error) {
	if user, ok := s.users[userID]; ok {
		return user, nil
	}
	return domain.User{}, errors.New("user not found")
}

func (s *stubUserRepo) FindByIDs(_ context.Context, ids []string) (map[string]domain.User, error) {
	s.mu.Lock()
	s.batchLookups++
	s.mu.Unlock()
	found := make(map[string]domain.User, len(ids))
	for _, id := range ids {
		if user, ok := s.users[id]; ok {
			found[id] = user
		}
	}
	return found, nil
}

func (s *stubUserRepo) SetAvailability(_ context.Context, userID string, availability domain.ShipperAvailability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.availability == nil {
		s.availability = make(map[string]domain.ShipperAvailability)
	}
	s.availability[userID] = availability
	return nil
}

type stubAddressRepo struct {
	findFn func(context.Context, string) (domain.Address, error)
}

func (s *stubAddressRepo) FindByID(ctx context.Context, addressID string) (domain.Address, error) {
	if s.findFn != nil {
		return s.findFn(ctx, addressID)
	}
	return domain.Address{}, errors.New("not implemented")
}

type stubCounterRepo struct {
	next int64
}

func (s *stubCounterRepo) Next(context.Context, string) (int64, error) {
	s.next++
	return s.next, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) byType(eventType string) []OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []OrderEvent
	for _, event := range p.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

type recordingProcessor struct {
	mu      sync.Mutex
	refunds []payments.RefundRequest
}

func (p *recordingProcessor) Charge(_ context.Context, req payments.ChargeRequest) (payments.ChargeResult, error) {
	return payments.ChargeResult{Reference: "pi_" + req.OrderID, Status: payments.StatusSucceeded}, nil
}

func (p *recordingProcessor) Refund(_ context.Context, req payments.RefundRequest) (payments.RefundResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunds = append(p.refunds, req)
	return payments.RefundResult{Reference: "re_" + req.OrderID}, nil
}

// claimableOrderRepo emulates the store's transactional claim semantics:
// the first committer wins, everyone else gets ErrOrderTaken.
type claimableOrderRepo struct {
	stubOrderRepo

	mu    sync.Mutex
	order domain.Order
}

func newClaimableOrderRepo(order domain.Order) *claimableOrderRepo {
	return &claimableOrderRepo{order: order}
}

func (r *claimableOrderRepo) FindByID(context.Context, string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order, nil
}

func (r *claimableOrderRepo) AcceptOrderAtomically(_ context.Context, _ string, claim repositories.ShipperClaim) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.order.Status != domain.OrderStatusReady || r.order.ShipperID != nil {
		return domain.Order{}, repositories.ErrOrderTaken
	}

	shipperID := claim.ShipperID
	r.order.ShipperID = &shipperID
	r.order.Shipper = &claim.Snapshot
	claimedAt := claim.ClaimedAt
	r.order.ClaimedAt = &claimedAt
	return r.order, nil
}

type serviceFixture struct {
	orders    *stubOrderRepo
	carts     *stubCartRepo
	shops     *stubShopRepo
	products  *stubProductRepo
	vouchers  *stubVoucherRepo
	users     *stubUserRepo
	address   *stubAddressRepo
	events    *recordingPublisher
	processor payments.Processor
	now       time.Time
}

func newServiceFixture() *serviceFixture {
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	return &serviceFixture{
		orders: &stubOrderRepo{},
		carts: &stubCartRepo{
			groupFn: func(context.Context, string, string) (domain.CartGroup, error) {
				return domain.CartGroup{
					CustomerID: "cust-1",
					ShopID:     "shop-1",
					Items: []domain.CartItem{
						{ID: "ci-1", ProductID: "prod-1", ProductName: "Pho", UnitPrice: 1000, Quantity: 2},
						{ID: "ci-2", ProductID: "prod-2", ProductName: "Spring Rolls", UnitPrice: 500, Quantity: 1},
					},
				}, nil
			},
		},
		shops: &stubShopRepo{
			findFn: func(context.Context, string) (domain.Shop, error) {
				return domain.Shop{ID: "shop-1", OwnerID: "owner-1", Name: "Pho Corner", Open: true, ShipperFee: 1500}, nil
			},
			ownerFn: func(_ context.Context, ownerID string) (domain.Shop, error) {
				if ownerID != "owner-1" {
					return domain.Shop{}, errors.New("shop not found")
				}
				return domain.Shop{ID: "shop-1", OwnerID: "owner-1", Name: "Pho Corner", Open: true}, nil
			},
		},
		products: &stubProductRepo{
			findFn: func(_ context.Context, ids []string) (map[string]domain.Product, error) {
				catalog := make(map[string]domain.Product, len(ids))
				for _, id := range ids {
					// Live prices deliberately differ from the locked cart
					// prices.
					catalog[id] = domain.Product{ID: id, ShopID: "shop-1", Price: 9999, Available: true}
				}
				return catalog, nil
			},
		},
		vouchers: &stubVoucherRepo{},
		users: &stubUserRepo{users: map[string]domain.User{
			"cust-1":  {ID: "cust-1", Role: domain.RoleCustomer, Name: "Anh", Phone: "555-0101"},
			"owner-1": {ID: "owner-1", Role: domain.RoleOwner, Name: "Binh", Phone: "555-0102"},
			"ship-1":  {ID: "ship-1", Role: domain.RoleShipper, Name: "Chi", Phone: "555-0103", ShopID: "shop-1", Availability: domain.ShipperAvailable},
			"ship-2":  {ID: "ship-2", Role: domain.RoleShipper, Name: "Dung", Phone: "555-0104", ShopID: "shop-1", Availability: domain.ShipperAvailable},
		}},
		address: &stubAddressRepo{
			findFn: func(context.Context, string) (domain.Address, error) {
				return domain.Address{ID: "addr-1", CustomerID: "cust-1", Recipient: "Anh", Phone: "555-0101", Line: "12 Hang Bac"}, nil
			},
		},
		events: &recordingPublisher{},
		now:    now,
	}
}

func (f *serviceFixture) service(t *testing.T) OrderService {
	t.Helper()
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      f.orders,
		Carts:       f.carts,
		Shops:       f.shops,
		Products:    f.products,
		Vouchers:    f.vouchers,
		Users:       f.users,
		Addresses:   f.address,
		Counters:    &stubCounterRepo{},
		Payments:    f.processor,
		Events:      f.events,
		Clock:       func() time.Time { return f.now },
		IDGenerator: func() string { return "test" },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc
}

func (f *serviceFixture) serviceWithOrders(t *testing.T, orders repositories.OrderRepository) OrderService {
	t.Helper()
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    orders,
		Carts:     f.carts,
		Shops:     f.shops,
		Products:  f.products,
		Vouchers:  f.vouchers,
		Users:     f.users,
		Addresses: f.address,
		Counters:  &stubCounterRepo{},
		Events:    f.events,
		Clock:     func() time.Time { return f.now },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc
}

func readyOrder() domain.Order {
	return domain.Order{
		ID:            "ord_1",
		OrderNumber:   "MH-2026-000001",
		CustomerID:    "cust-1",
		ShopID:        "shop-1",
		ShipperID:     nil,
		Status:        domain.OrderStatusReady,
		PaymentStatus: domain.PaymentStatusUnpaid,
		PaymentMethod: domain.PaymentMethodCOD,
		Total:         2500,
	}
}

func TestCreateOrderLocksCartPrices(t *testing.T) {
	fixture := newServiceFixture()

	var captured repositories.CreateOrderTx
	fixture.orders.createFn = func(_ context.Context, tx repositories.CreateOrderTx) (domain.Order, error) {
		captured = tx
		return tx.Order, nil
	}

	svc := fixture.service(t)
	order, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		CustomerID:    "cust-1",
		ShopID:        "shop-1",
		AddressID:     "addr-1",
		PaymentMethod: domain.PaymentMethodCOD,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	// 2x1000 + 1x500 from cart lines, not the 9999 catalog price.
	if order.Subtotal != 2500 {
		t.Errorf("subtotal = %d, want 2500", order.Subtotal)
	}
	if order.ShipFee != 0 {
		t.Errorf("shipFee = %d, delivery must be free for the customer", order.ShipFee)
	}
	if order.ShipperPayout != 1500 {
		t.Errorf("shipperPayout = %d, want the shop's 1500 fee", order.ShipperPayout)
	}
	if order.Total != 2500 {
		t.Errorf("total = %d, want 2500 (subtotal only)", order.Total)
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("status = %s, want pending", order.Status)
	}
	if order.ShipperID != nil {
		t.Error("new order must be unassigned")
	}
	if len(captured.CartItemIDs) != 2 || captured.CartItemIDs[0] != "ci-1" {
		t.Errorf("cart item ids = %v", captured.CartItemIDs)
	}
	if captured.Voucher != nil {
		t.Error("voucher consume must be nil without a code")
	}
	if created := fixture.events.byType(orderEventCreated); len(created) != 1 {
		t.Errorf("expected 1 created event, got %d", len(created))
	}
}

func TestCreateOrderAppliesVoucherDiscount(t *testing.T) {
	fixture := newServiceFixture()
	fixture.vouchers.findFn = func(context.Context, string) (domain.Voucher, error) {
		return domain.Voucher{ID: "v-1", Code: "LUNCH10", Percent: 10, Active: true}, nil
	}

	var captured repositories.CreateOrderTx
	fixture.orders.createFn = func(_ context.Context, tx repositories.CreateOrderTx) (domain.Order, error) {
		captured = tx
		return tx.Order, nil
	}

	svc := fixture.service(t)
	order, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		CustomerID:    "cust-1",
		ShopID:        "shop-1",
		AddressID:     "addr-1",
		PaymentMethod: domain.PaymentMethodCOD,
		VoucherCode:   "LUNCH10",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if order.Discount != 250 {
		t.Errorf("discount = %d, want 250", order.Discount)
	}
	if order.Total != 2250 {
		t.Errorf("total = %d, want 2250", order.Total)
	}
	if captured.Voucher == nil || captured.Voucher.VoucherID != "v-1" {
		t.Errorf("voucher consume = %+v", captured.Voucher)
	}
}

func TestCreateOrderVoucherFailureAbortsCreation(t *testing.T) {
	fixture := newServiceFixture()
	fixture.vouchers.findFn = func(context.Context, string) (domain.Voucher, error) {
		return domain.Voucher{ID: "v-1", Code: "LUNCH10", Percent: 10, Active: true}, nil
	}
	fixture.orders.createFn = func(context.Context, repositories.CreateOrderTx) (domain.Order, error) {
		// The transactional re-validation lost against a concurrent
		// consumer; everything rolls back.
		return domain.Order{}, &repositories.VoucherError{Code: "voucher_exhausted", Message: "voucher usage limit reached"}
	}

	svc := fixture.service(t)
	_, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		CustomerID:    "cust-1",
		ShopID:        "shop-1",
		AddressID:     "addr-1",
		PaymentMethod: domain.PaymentMethodCOD,
		VoucherCode:   "LUNCH10",
	})
	if !errors.Is(err, ErrVoucherInvalid) {
		t.Fatalf("expected ErrVoucherInvalid, got %v", err)
	}
	if len(fixture.events.byType(orderEventCreated)) != 0 {
		t.Error("no created event may be published for an aborted creation")
	}
}

func TestCreateOrderRejectsClosedShop(t *testing.T) {
	fixture := newServiceFixture()
	fixture.shops.findFn = func(context.Context, string) (domain.Shop, error) {
		return domain.Shop{ID: "shop-1", Open: false}, nil
	}

	svc := fixture.service(t)
	_, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		CustomerID:    "cust-1",
		ShopID:        "shop-1",
		AddressID:     "addr-1",
		PaymentMethod: domain.PaymentMethodCOD,
	})
	if !errors.Is(err, ErrShopClosed) {
		t.Fatalf("expected ErrShopClosed, got %v", err)
	}
}

func TestCreateOrderRejectsEmptyCart(t *testing.T) {
	fixture := newServiceFixture()
	fixture.carts.groupFn = func(context.Context, string, string) (domain.CartGroup, error) {
		return domain.CartGroup{CustomerID: "cust-1", ShopID: "shop-1"}, nil
	}

	svc := fixture.service(t)
	_, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		CustomerID:    "cust-1",
		ShopID:        "shop-1",
		AddressID:     "addr-1",
		PaymentMethod: domain.PaymentMethodCOD,
	})
	if !errors.Is(err, ErrCartEmpty) {
		t.Fatalf("expected ErrCartEmpty, got %v", err)
	}
}

func TestCreateOrderRejectsUnavailableProduct(t *testing.T) {
	fixture := newServiceFixture()
	fixture.products.findFn = func(_ context.Context, ids []string) (map[string]domain.Product, error) {
		catalog := make(map[string]domain.Product, len(ids))
		for _, id := range ids {
			catalog[id] = domain.Product{ID: id, Available: false}
		}
		return catalog, nil
	}

	svc := fixture.service(t)
	_, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		CustomerID:    "cust-1",
		ShopID:        "shop-1",
		AddressID:     "addr-1",
		PaymentMethod: domain.PaymentMethodCOD,
	})
	if !errors.Is(err, ErrProductUnavailable) {
		t.Fatalf("expected ErrProductUnavailable, got %v", err)
	}
}

func TestCreateOrderRejectsForeignAddress(t *testing.T) {
	fixture := newServiceFixture()
	fixture.address.findFn = func(context.Context, string) (domain.Address, error) {
		return domain.Address{ID: "addr-9", CustomerID: "someone-else"}, nil
	}

	svc := fixture.service(t)
	_, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		CustomerID:    "cust-1",
		ShopID:        "shop-1",
		AddressID:     "addr-9",
		PaymentMethod: domain.PaymentMethodCOD,
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
}

func TestAcceptOrderFirstClaimWins(t *testing.T) {
	fixture := newServiceFixture()
	shippers := []string{"ship-1", "ship-2"}
	for i := 3; i <= 8; i++ {
		id := string(rune('0'+i)) + "-shipper"
		fixture.users.users[id] = domain.User{ID: id, Role: domain.RoleShipper, Name: "S", Phone: "555", Availability: domain.ShipperAvailable}
		shippers = append(shippers, id)
	}

	repo := newClaimableOrderRepo(readyOrder())
	svc := fixture.serviceWithOrders(t, repo)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []string
		rejected int
	)
	for _, shipperID := range shippers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.AcceptOrder(context.Background(), id, "ord_1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, id)
			case errors.Is(err, ErrOrderTaken):
				rejected++
			default:
				t.Errorf("unexpected error for %s: %v", id, err)
			}
		}(shipperID)
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("expected exactly one winning claim, got %d (%v)", len(winners), winners)
	}
	if rejected != len(shippers)-1 {
		t.Errorf("expected %d rejections, got %d", len(shippers)-1, rejected)
	}
	if repo.order.ShipperID == nil || *repo.order.ShipperID != winners[0] {
		t.Errorf("stored shipper = %v, want %s", repo.order.ShipperID, winners[0])
	}
	if repo.order.Status != domain.OrderStatusReady {
		t.Errorf("claim must not change status, got %s", repo.order.Status)
	}
	if fixture.users.availability[winners[0]] != domain.ShipperDelivering {
		t.Errorf("winner availability = %s, want delivering", fixture.users.availability[winners[0]])
	}
	if claimed := fixture.events.byType(orderEventClaimed); len(claimed) != 1 {
		t.Errorf("expected 1 claimed event, got %d", len(claimed))
	}
}

func TestAcceptOrderRejectsIncompleteProfile(t *testing.T) {
	fixture := newServiceFixture()
	fixture.users.users["ship-1"] = domain.User{ID: "ship-1", Role: domain.RoleShipper}

	repo := newClaimableOrderRepo(readyOrder())
	svc := fixture.serviceWithOrders(t, repo)

	_, err := svc.AcceptOrder(context.Background(), "ship-1", "ord_1")
	if !errors.Is(err, ErrShipperProfileIncomplete) {
		t.Fatalf("expected ErrShipperProfileIncomplete, got %v", err)
	}
}

func TestAcceptOrderRejectsNonReadyOrder(t *testing.T) {
	fixture := newServiceFixture()
	order := readyOrder()
	order.Status = domain.OrderStatusPreparing

	repo := newClaimableOrderRepo(order)
	svc := fixture.serviceWithOrders(t, repo)

	_, err := svc.AcceptOrder(context.Background(), "ship-1", "ord_1")
	if !errors.Is(err, ErrOrderTaken) {
		t.Fatalf("expected ErrOrderTaken, got %v", err)
	}
}

func TestMarkShippingRequiresAssignedShipper(t *testing.T) {
	fixture := newServiceFixture()
	assigned := "ship-1"
	order := readyOrder()
	order.ShipperID = &assigned

	fixture.orders.findFn = func(context.Context, string) (domain.Order, error) {
		return order, nil
	}

	svc := fixture.service(t)
	if _, err := svc.MarkShipping(context.Background(), "ship-2", "ord_1"); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden for the losing shipper, got %v", err)
	}
}

func TestMarkDeliveredSettlesCashOnDelivery(t *testing.T) {
	fixture := newServiceFixture()
	assigned := "ship-1"
	order := readyOrder()
	order.Status = domain.OrderStatusShipping
	order.ShipperID = &assigned

	var captured repositories.OrderUpdate
	fixture.orders.findFn = func(context.Context, string) (domain.Order, error) {
		return order, nil
	}
	fixture.orders.applyFn = func(_ context.Context, _ string, update repositories.OrderUpdate) (domain.Order, error) {
		captured = update
		updated := order
		updated.Status = update.Status
		updated.PaymentStatus = domain.PaymentStatusPaid
		return updated, nil
	}

	svc := fixture.service(t)
	delivered, err := svc.MarkDelivered(context.Background(), "ship-1", "ord_1")
	if err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}

	if !captured.MarkPaid {
		t.Error("cash-on-delivery settlement must ride the delivery update")
	}
	if _, ok := captured.Timestamps["deliveredAt"]; !ok {
		t.Error("deliveredAt timestamp missing")
	}
	if delivered.PaymentStatus != domain.PaymentStatusPaid {
		t.Errorf("payment status = %s, want paid", delivered.PaymentStatus)
	}
	if fixture.users.availability["ship-1"] != domain.ShipperAvailable {
		t.Errorf("shipper availability = %s, want available", fixture.users.availability["ship-1"])
	}
}

func TestCancelOrderRefundsPaidOrder(t *testing.T) {
	fixture := newServiceFixture()
	ref := "pi_123"
	order := readyOrder()
	order.Status = domain.OrderStatusPending
	order.PaymentMethod = domain.PaymentMethodCard
	order.PaymentStatus = domain.PaymentStatusPaid
	order.PaymentRef = &ref

	var captured repositories.OrderUpdate
	fixture.orders.findFn = func(context.Context, string) (domain.Order, error) {
		return order, nil
	}
	fixture.orders.applyFn = func(_ context.Context, _ string, update repositories.OrderUpdate) (domain.Order, error) {
		captured = update
		updated := order
		updated.Status = update.Status
		return updated, nil
	}

	svc := fixture.service(t)
	if _, err := svc.CancelOrder(context.Background(), "cust-1", CancelOrderCommand{OrderID: "ord_1", Reason: "changed my mind"}); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}

	if !captured.MarkRefunded {
		t.Error("paid order cancellation must record the refund")
	}
	if captured.CancelledBy == nil || *captured.CancelledBy != domain.CancelledByCustomer {
		t.Errorf("cancelledBy = %v", captured.CancelledBy)
	}
	if captured.CancelReason == nil || *captured.CancelReason != "changed my mind" {
		t.Errorf("cancelReason = %v", captured.CancelReason)
	}
}

func TestCancelOrderRejectsLateCancellation(t *testing.T) {
	fixture := newServiceFixture()
	order := readyOrder()
	order.Status = domain.OrderStatusPreparing

	fixture.orders.findFn = func(context.Context, string) (domain.Order, error) {
		return order, nil
	}

	svc := fixture.service(t)
	_, err := svc.CancelOrder(context.Background(), "cust-1", CancelOrderCommand{OrderID: "ord_1"})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}
}

func TestOwnerTransitionRejectsForeignShop(t *testing.T) {
	fixture := newServiceFixture()
	order := readyOrder()
	order.Status = domain.OrderStatusPending
	order.ShopID = "shop-2"

	fixture.orders.findFn = func(context.Context, string) (domain.Order, error) {
		return order, nil
	}

	svc := fixture.service(t)
	if _, err := svc.ConfirmOrder(context.Background(), "owner-1", "ord_1"); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
}

func TestListAvailableOrdersUsesUnassignedFilter(t *testing.T) {
	fixture := newServiceFixture()

	var captured repositories.OrderListFilter
	fixture.orders.listFn = func(_ context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
		captured = filter
		return domain.NewPage([]domain.Order{readyOrder()}, filter.Page, filter.Limit, 1), nil
	}

	svc := fixture.service(t)
	page, err := svc.ListAvailableOrders(context.Background(), "ship-1", OrderListQuery{})
	if err != nil {
		t.Fatalf("ListAvailableOrders: %v", err)
	}

	if !captured.UnassignedOnly {
		t.Error("available pool must filter on the explicit-null assignment")
	}
	if captured.ShopID != "shop-1" {
		t.Errorf("pool shop scope = %q, want the shipper's shop-1", captured.ShopID)
	}
	if captured.Page != 1 || captured.Limit == 0 {
		t.Errorf("pagination not normalised: %+v", captured)
	}
	if page.Total != 1 || page.TotalPages != 1 {
		t.Errorf("page = %+v", page)
	}
}

func TestAcceptOrderRejectsOffDutyShipper(t *testing.T) {
	fixture := newServiceFixture()
	shipper := fixture.users.users["ship-1"]
	shipper.Availability = domain.ShipperUnavailable
	fixture.users.users["ship-1"] = shipper

	repo := newClaimableOrderRepo(readyOrder())
	svc := fixture.serviceWithOrders(t, repo)

	_, err := svc.AcceptOrder(context.Background(), "ship-1", "ord_1")
	if !errors.Is(err, ErrShipperNotReady) {
		t.Fatalf("expected ErrShipperNotReady, got %v", err)
	}
	if repo.order.ShipperID != nil {
		t.Error("an off-duty shipper must not win the claim")
	}
}

func TestListShipperOrdersRefreshesSnapshotsInOneLookup(t *testing.T) {
	fixture := newServiceFixture()
	assigned := "ship-1"
	stale := readyOrder()
	stale.ShipperID = &assigned
	stale.Customer = domain.PartySnapshot{Name: "Stale", Phone: "000"}
	stale.Shipper = &domain.PartySnapshot{Name: "Stale", Phone: "000"}
	second := stale
	second.ID = "ord_2"

	fixture.orders.listFn = func(_ context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
		return domain.NewPage([]domain.Order{stale, second}, filter.Page, filter.Limit, 2), nil
	}

	svc := fixture.service(t)
	page, err := svc.ListShipperOrders(context.Background(), "ship-1", OrderListQuery{})
	if err != nil {
		t.Fatalf("ListShipperOrders: %v", err)
	}

	for _, order := range page.Items {
		if order.Customer.Name != "Anh" || order.Customer.Phone != "555-0101" {
			t.Errorf("customer snapshot not refreshed on %s: %+v", order.ID, order.Customer)
		}
		if order.Shipper == nil || order.Shipper.Name != "Chi" {
			t.Errorf("shipper snapshot not refreshed on %s: %+v", order.ID, order.Shipper)
		}
	}
	if fixture.users.batchLookups != 1 {
		t.Errorf("profile lookups = %d, want one grouped call per page", fixture.users.batchLookups)
	}
}

func TestCancelRefundReasonReflectsCancellingParty(t *testing.T) {
	run := func(t *testing.T, cancel func(svc OrderService) error, wantReason string) {
		t.Helper()
		fixture := newServiceFixture()
		processor := &recordingProcessor{}
		fixture.processor = processor

		ref := "pi_123"
		order := readyOrder()
		// Confirmed is cancellable by both sides.
		order.Status = domain.OrderStatusConfirmed
		order.PaymentMethod = domain.PaymentMethodCard
		order.PaymentStatus = domain.PaymentStatusPaid
		order.PaymentRef = &ref

		fixture.orders.findFn = func(context.Context, string) (domain.Order, error) {
			return order, nil
		}
		fixture.orders.applyFn = func(_ context.Context, _ string, update repositories.OrderUpdate) (domain.Order, error) {
			updated := order
			updated.Status = update.Status
			return updated, nil
		}

		svc := fixture.service(t)
		if err := cancel(svc); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if len(processor.refunds) != 1 {
			t.Fatalf("refunds = %d, want 1", len(processor.refunds))
		}
		if got := processor.refunds[0].Reason; got != wantReason {
			t.Errorf("refund reason = %q, want %q", got, wantReason)
		}
	}

	t.Run("customer cancellation", func(t *testing.T) {
		run(t, func(svc OrderService) error {
			_, err := svc.CancelOrder(context.Background(), "cust-1", CancelOrderCommand{OrderID: "ord_1"})
			return err
		}, "requested_by_customer")
	})

	t.Run("owner cancellation", func(t *testing.T) {
		run(t, func(svc OrderService) error {
			_, err := svc.OwnerCancelOrder(context.Background(), "owner-1", CancelOrderCommand{OrderID: "ord_1", Reason: "out of stock"})
			return err
		}, "cancelled_by_shop")
	})
}
