package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/mealhub/api/internal/domain"
	"github.com/mealhub/api/internal/platform/httpx"
	"github.com/mealhub/api/internal/platform/pagination"
	"github.com/mealhub/api/internal/services"
)

// ShopOrderHandlers serves the shop-owner order surface.
type ShopOrderHandlers struct {
	orders services.OrderService
}

// NewShopOrderHandlers constructs the owner order handlers.
func NewShopOrderHandlers(orders services.OrderService) (*ShopOrderHandlers, error) {
	if orders == nil {
		return nil, errors.New("shop order handlers require the order service")
	}
	return &ShopOrderHandlers{orders: orders}, nil
}

// Routes registers the owner endpoints. The kitchen moves one step per
// call; each step has its own route so the transition intent is explicit.
func (h *ShopOrderHandlers) Routes() RouteRegistrar {
	return func(r chi.Router) {
		r.Get("/orders", h.list)
		r.Get("/orders/{orderID}", h.get)
		r.Post("/orders/{orderID}/confirm", h.confirm)
		r.Post("/orders/{orderID}/preparing", h.preparing)
		r.Post("/orders/{orderID}/ready", h.ready)
		r.Post("/orders/{orderID}/cancel", h.cancel)
	}
}

func (h *ShopOrderHandlers) list(w http.ResponseWriter, r *http.Request) {
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

	page, err := h.orders.ListShopOrders(ctx, identity.UID, services.OrderListQuery{
		Status: parseStatusFilter(r.URL.Query().Get("status")),
		Page:   params,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toPageResponse(page))
}

func (h *ShopOrderHandlers) get(w http.ResponseWriter, r *http.Request) {
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

func (h *ShopOrderHandlers) confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.ConfirmOrder)
}

func (h *ShopOrderHandlers) preparing(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.MarkPreparing)
}

func (h *ShopOrderHandlers) ready(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.MarkReady)
}

func (h *ShopOrderHandlers) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, ownerID, orderID string) (domain.Order, error)) {
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

func (h *ShopOrderHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if body, err := readLimitedBody(r, maxRequestBodySize); err == nil {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed JSON body", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.OwnerCancelOrder(ctx, identity.UID, services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Reason:  req.Reason,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}
