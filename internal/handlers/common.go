package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/mealhub/api/internal/domain"
	"github.com/mealhub/api/internal/payments"
	"github.com/mealhub/api/internal/platform/auth"
	"github.com/mealhub/api/internal/platform/httpx"
	"github.com/mealhub/api/internal/repositories"
	"github.com/mealhub/api/internal/services"
)

const maxRequestBodySize = 64 << 10

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxRequestBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	value := formatTime(*t)
	return &value
}

type partyResponse struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type shopSnapshotResponse struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type orderItemResponse struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	Subtotal    int64  `json:"subtotal"`
}

type addressResponse struct {
	Recipient string `json:"recipient"`
	Phone     string `json:"phone"`
	Line      string `json:"line"`
	Ward      string `json:"ward,omitempty"`
	District  string `json:"district,omitempty"`
	City      string `json:"city,omitempty"`
	Note      string `json:"note,omitempty"`
}

type orderResponse struct {
	ID          string `json:"id"`
	OrderNumber string `json:"orderNumber"`

	CustomerID string  `json:"customerId"`
	ShopID     string  `json:"shopId"`
	ShipperID  *string `json:"shipperId"`

	Customer partyResponse        `json:"customer"`
	Shop     shopSnapshotResponse `json:"shop"`
	Shipper  *partyResponse       `json:"shipper,omitempty"`

	Items []orderItemResponse `json:"items"`

	Subtotal    int64   `json:"subtotal"`
	ShipFee     int64   `json:"shipFee"`
	Discount    int64   `json:"discount"`
	Total       int64   `json:"total"`
	VoucherCode *string `json:"voucherCode,omitempty"`

	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	PaymentMethod string `json:"paymentMethod"`

	Address      addressResponse `json:"address"`
	DeliveryNote string          `json:"deliveryNote,omitempty"`

	ConfirmedAt  *string `json:"confirmedAt,omitempty"`
	ReadyAt      *string `json:"readyAt,omitempty"`
	ClaimedAt    *string `json:"claimedAt,omitempty"`
	ShippingAt   *string `json:"shippingAt,omitempty"`
	DeliveredAt  *string `json:"deliveredAt,omitempty"`
	CancelledAt  *string `json:"cancelledAt,omitempty"`
	CancelReason *string `json:"cancelReason,omitempty"`
	CancelledBy  *string `json:"cancelledBy,omitempty"`

	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func toOrderResponse(order domain.Order) orderResponse {
	resp := orderResponse{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		ShopID:      order.ShopID,
		ShipperID:   order.ShipperID,
		Customer:    partyResponse{Name: order.Customer.Name, Phone: order.Customer.Phone},
		Shop: shopSnapshotResponse{
			Name:    order.Shop.Name,
			Phone:   order.Shop.Phone,
			Address: order.Shop.Address,
		},
		Subtotal:      order.Subtotal,
		ShipFee:       order.ShipFee,
		Discount:      order.Discount,
		Total:         order.Total,
		VoucherCode:   order.VoucherCode,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: string(order.PaymentMethod),
		Address: addressResponse{
			Recipient: order.Address.Recipient,
			Phone:     order.Address.Phone,
			Line:      order.Address.Line,
			Ward:      order.Address.Ward,
			District:  order.Address.District,
			City:      order.Address.City,
			Note:      order.Address.Note,
		},
		DeliveryNote: order.DeliveryNote,
		ConfirmedAt:  formatTimePtr(order.ConfirmedAt),
		ReadyAt:      formatTimePtr(order.ReadyAt),
		ClaimedAt:    formatTimePtr(order.ClaimedAt),
		ShippingAt:   formatTimePtr(order.ShippingAt),
		DeliveredAt:  formatTimePtr(order.DeliveredAt),
		CancelledAt:  formatTimePtr(order.CancelledAt),
		CancelReason: order.CancelReason,
		CreatedAt:    formatTime(order.CreatedAt),
		UpdatedAt:    formatTime(order.UpdatedAt),
	}
	if order.Shipper != nil {
		resp.Shipper = &partyResponse{Name: order.Shipper.Name, Phone: order.Shipper.Phone}
	}
	if order.CancelledBy != nil {
		value := string(*order.CancelledBy)
		resp.CancelledBy = &value
	}
	resp.Items = make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		})
	}
	return resp
}

type pageResponse struct {
	Items       []orderResponse `json:"items"`
	Page        int             `json:"page"`
	Limit       int             `json:"limit"`
	Total       int64           `json:"total"`
	TotalPages  int             `json:"totalPages"`
	Approximate bool            `json:"approximate,omitempty"`
}

func toPageResponse(page domain.Page[domain.Order]) pageResponse {
	resp := pageResponse{
		Items:       make([]orderResponse, 0, len(page.Items)),
		Page:        page.Page,
		Limit:       page.Limit,
		Total:       page.Total,
		TotalPages:  page.TotalPages,
		Approximate: page.Approximate,
	}
	for _, order := range page.Items {
		resp.Items = append(resp.Items, toOrderResponse(order))
	}
	return resp
}

func parseStatusFilter(raw string) []domain.OrderStatus {
	var statuses []domain.OrderStatus
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.ToLower(strings.TrimSpace(part)); trimmed != "" {
			statuses = append(statuses, domain.OrderStatus(trimmed))
		}
	}
	return statuses
}

// writeOrderError maps service failures onto the wire error envelope.
func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, errEmptyBody),
		errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "you may not act on this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderTaken):
		httpx.WriteError(ctx, w, httpx.NewError("order_taken", "order is no longer available", http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrShopClosed):
		httpx.WriteError(ctx, w, httpx.NewError("shop_closed", "shop is not accepting orders", http.StatusConflict))
	case errors.Is(err, services.ErrCartEmpty):
		// An empty group means there is nothing at that cart location.
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "no cart items for this shop", http.StatusNotFound))
	case errors.Is(err, services.ErrProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrVoucherInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("voucher_invalid", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrShipperProfileIncomplete):
		httpx.WriteError(ctx, w, httpx.NewError("profile_incomplete", "complete your shipper profile before claiming orders", http.StatusBadRequest))
	case errors.Is(err, services.ErrShipperNotReady):
		httpx.WriteError(ctx, w, httpx.NewError("shipper_not_ready", "set your availability to ready before claiming orders", http.StatusConflict))
	case errors.Is(err, payments.ErrPaymentDeclined):
		httpx.WriteError(ctx, w, httpx.NewError("payment_declined", "payment was declined", http.StatusPaymentRequired))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "storage temporarily unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}
