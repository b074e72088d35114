package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/mealhub/api/internal/domain"
	"github.com/mealhub/api/internal/platform/httpx"
	"github.com/mealhub/api/internal/platform/pagination"
	"github.com/mealhub/api/internal/services"
)

// ShipperOrderHandlers serves the delivery-agent surface: the shared claim
// pool, the shipper's own orders and the pickup/delivery transitions.
type ShipperOrderHandlers struct {
	orders services.OrderService
}

// NewShipperOrderHandlers constructs the shipper order handlers.
func NewShipperOrderHandlers(orders services.OrderService) (*ShipperOrderHandlers, error) {
	if orders == nil {
		return nil, errors.New("shipper order handlers require the order service")
	}
	return &ShipperOrderHandlers{orders: orders}, nil
}

// Routes registers the shipper endpoints.
func (h *ShipperOrderHandlers) Routes() RouteRegistrar {
	return func(r chi.Router) {
		r.Get("/orders/available", h.available)
		r.Get("/orders", h.list)
		r.Get("/orders/{orderID}", h.get)
		r.Post("/orders/{orderID}/accept", h.accept)
		r.Post("/orders/{orderID}/pickup", h.pickup)
		r.Post("/orders/{orderID}/deliver", h.deliver)
	}
}

func (h *ShipperOrderHandlers) available(w http.ResponseWriter, r *http.Request) {
	h.listWith(w, r, h.orders.ListAvailableOrders)
}

func (h *ShipperOrderHandlers) list(w http.ResponseWriter, r *http.Request) {
	h.listWith(w, r, h.orders.ListShipperOrders)
}

func (h *ShipperOrderHandlers) listWith(w http.ResponseWriter, r *http.Request, fetch func(ctx context.Context, shipperID string, query services.OrderListQuery) (domain.Page[domain.Order], error)) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := fetch(ctx, identity.UID, services.OrderListQuery{
		Status: parseStatusFilter(r.URL.Query().Get("status")),
		Page:   params,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toPageResponse(page))
}

func (h *ShipperOrderHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, identity.UID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}

// accept races other shippers for the claim; losing the race surfaces as a
// conflict, not an error worth retrying.
func (h *ShipperOrderHandlers) accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.AcceptOrder)
}

func (h *ShipperOrderHandlers) pickup(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.MarkShipping)
}

func (h *ShipperOrderHandlers) deliver(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.MarkDelivered)
}

func (h *ShipperOrderHandlers) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, shipperID, orderID string) (domain.Order, error)) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, err := apply(ctx, identity.UID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}
