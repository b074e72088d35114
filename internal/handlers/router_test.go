package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/mealhub/api/internal/domain"
	"github.com/mealhub/api/internal/platform/auth"
	"github.com/mealhub/api/internal/services"
)

type stubOrderService struct {
	createOrder func(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error)
	acceptOrder func(ctx context.Context, shipperID, orderID string) (domain.Order, error)
	listShop    func(ctx context.Context, ownerID string, query services.OrderListQuery) (domain.Page[domain.Order], error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	if s.createOrder != nil {
		return s.createOrder(ctx, cmd)
	}
	return domain.Order{}, nil
}

func (s *stubOrderService) GetOrder(context.Context, string, string) (domain.Order, error) {
	return domain.Order{}, nil
}

func (s *stubOrderService) ListCustomerOrders(context.Context, string, services.OrderListQuery) (domain.Page[domain.Order], error) {
	return domain.Page[domain.Order]{}, nil
}

func (s *stubOrderService) CancelOrder(context.Context, string, services.CancelOrderCommand) (domain.Order, error) {
	return domain.Order{}, nil
}

func (s *stubOrderService) ListShopOrders(ctx context.Context, ownerID string, query services.OrderListQuery) (domain.Page[domain.Order], error) {
	if s.listShop != nil {
		return s.listShop(ctx, ownerID, query)
	}
	return domain.Page[domain.Order]{}, nil
}

func (s *stubOrderService) ConfirmOrder(context.Context, string, string) (domain.Order, error) {
	return domain.Order{}, nil
}

func (s *stubOrderService) MarkPreparing(context.Context, string, string) (domain.Order, error) {
	return domain.Order{}, nil
}

func (s *stubOrderService) MarkReady(context.Context, string, string) (domain.Order, error) {
	return domain.Order{}, nil
}

func (s *stubOrderService) OwnerCancelOrder(context.Context, string, services.CancelOrderCommand) (domain.Order, error) {
	return domain.Order{}, nil
}

func (s *stubOrderService) ListAvailableOrders(context.Context, string, services.OrderListQuery) (domain.Page[domain.Order], error) {
	return domain.Page[domain.Order]{}, nil
}

func (s *stubOrderService) ListShipperOrders(context.Context, string, services.OrderListQuery) (domain.Page[domain.Order], error) {
	return domain.Page[domain.Order]{}, nil
}

func (s *stubOrderService) AcceptOrder(ctx context.Context, shipperID, orderID string) (domain.Order, error) {
	if s.acceptOrder != nil {
		return s.acceptOrder(ctx, shipperID, orderID)
	}
	return domain.Order{}, nil
}

func (s *stubOrderService) MarkShipping(context.Context, string, string) (domain.Order, error) {
	return domain.Order{}, nil
}

func (s *stubOrderService) MarkDelivered(context.Context, string, string) (domain.Order, error) {
	return domain.Order{}, nil
}

type stubMaintenanceService struct {
	backfill    func(ctx context.Context) (services.BackfillReport, error)
	diagnostics func(ctx context.Context, shopID string) (services.AvailabilityReport, error)
}

func (s *stubMaintenanceService) RunShipperBackfill(ctx context.Context) (services.BackfillReport, error) {
	if s.backfill != nil {
		return s.backfill(ctx)
	}
	return services.BackfillReport{}, nil
}

func (s *stubMaintenanceService) AvailabilityDiagnostic(ctx context.Context, shopID string) (services.AvailabilityReport, error) {
	if s.diagnostics != nil {
		return s.diagnostics(ctx, shopID)
	}
	return services.AvailabilityReport{ShopID: shopID}, nil
}

func identityMiddleware(uid string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithIdentity(r.Context(), &auth.Identity{UID: uid})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func TestRouterUnknownRouteReturnsErrorEnvelope(t *testing.T) {
	router := NewRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nothing-here", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["error"] != "route_not_found" {
		t.Errorf("unexpected error code: %v", payload["error"])
	}
}

func TestRouterHealthEndpointsBypassAuth(t *testing.T) {
	router := NewRouter(WithAuthMiddlewares(func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("healthz must not require auth, got %d", rec.Code)
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	var captured services.CreateOrderCommand
	orderSvc := &stubOrderService{
		createOrder: func(_ context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
			captured = cmd
			return domain.Order{
				ID:            "ord_123",
				OrderNumber:   "MH-2026-000042",
				CustomerID:    cmd.CustomerID,
				ShopID:        cmd.ShopID,
				Status:        domain.OrderStatusPending,
				PaymentStatus: domain.PaymentStatusUnpaid,
				PaymentMethod: cmd.PaymentMethod,
				Total:         2500,
				CreatedAt:     time.Now().UTC(),
			}, nil
		},
	}
	handlers, err := NewOrderHandlers(orderSvc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	router := NewRouter(
		WithOrderRoutes(handlers.Routes()),
		WithAuthMiddlewares(identityMiddleware("cust-1")),
	)

	body := `{"shopId":"shop-1","addressId":"addr-1","paymentMethod":"cod"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.CustomerID != "cust-1" || captured.ShopID != "shop-1" {
		t.Errorf("unexpected command: %+v", captured)
	}
	payload := decodeBody(t, rec)
	if payload["id"] != "ord_123" {
		t.Errorf("unexpected order id: %v", payload["id"])
	}
	if _, present := payload["shipperId"]; !present {
		t.Error("shipperId must always be present in the response")
	}
	if payload["shipperId"] != nil {
		t.Errorf("new order must be unassigned, got %v", payload["shipperId"])
	}
}

func TestCreateOrderRejectsMalformedBody(t *testing.T) {
	handlers, err := NewOrderHandlers(&stubOrderService{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	router := NewRouter(
		WithOrderRoutes(handlers.Routes()),
		WithAuthMiddlewares(identityMiddleware("cust-1")),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestAcceptOrderConflictMapsToOrderTaken(t *testing.T) {
	orderSvc := &stubOrderService{
		acceptOrder: func(context.Context, string, string) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderTaken
		},
	}
	handlers, err := NewShipperOrderHandlers(orderSvc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	router := NewRouter(
		WithShipperRoutes(handlers.Routes()),
		WithAuthMiddlewares(identityMiddleware("ship-1")),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/shipper/orders/ord_9/accept", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["error"] != "order_taken" {
		t.Errorf("unexpected error code: %v", payload["error"])
	}
}

func TestInternalRoutesRequireToken(t *testing.T) {
	maintenance := &stubMaintenanceService{
		backfill: func(context.Context) (services.BackfillReport, error) {
			return services.BackfillReport{Scanned: 12, Updated: 3, StartedAt: time.Now().UTC()}, nil
		},
	}
	handlers, err := NewMaintenanceHandlers(maintenance)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	router := NewRouter(
		WithInternalRoutes(handlers.Routes()),
		WithInternalMiddlewares(auth.RequireInternalToken("tok")),
	)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/internal/maintenance/shipper-backfill", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/maintenance/shipper-backfill", nil)
	req.Header.Set("X-Internal-Token", "tok")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["scanned"] != float64(12) || payload["updated"] != float64(3) {
		t.Errorf("unexpected report: %v", payload)
	}
}

func TestUnconfiguredGroupReturnsNotImplemented(t *testing.T) {
	router := NewRouter(WithAuthMiddlewares(identityMiddleware("u-1")))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/shipper/orders", nil))

	if rec.Code != http.StatusNotImplemented {
		t.Errorf("expected 501, got %d", rec.Code)
	}
}
