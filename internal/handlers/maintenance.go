package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mealhub/api/internal/platform/httpx"
	"github.com/mealhub/api/internal/services"
)

// MaintenanceHandlers exposes the operational repair surface. The routes
// are mounted under /internal behind the internal-only middleware chain.
type MaintenanceHandlers struct {
	maintenance services.MaintenanceService
}

// NewMaintenanceHandlers constructs the maintenance handlers.
func NewMaintenanceHandlers(maintenance services.MaintenanceService) (*MaintenanceHandlers, error) {
	if maintenance == nil {
		return nil, errors.New("maintenance handlers require the maintenance service")
	}
	return &MaintenanceHandlers{maintenance: maintenance}, nil
}

// Routes registers the maintenance endpoints.
func (h *MaintenanceHandlers) Routes() RouteRegistrar {
	return func(r chi.Router) {
		r.Post("/maintenance/shipper-backfill", h.runBackfill)
		r.Get("/maintenance/availability/{shopID}", h.availability)
	}
}

type backfillResponse struct {
	Scanned   int    `json:"scanned"`
	Updated   int    `json:"updated"`
	Failed    int    `json:"failed"`
	StartedAt string `json:"startedAt"`
	Duration  string `json:"duration"`
}

func (h *MaintenanceHandlers) runBackfill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	report, err := h.maintenance.RunShipperBackfill(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("backfill_failed", err.Error(), http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, backfillResponse{
		Scanned:   report.Scanned,
		Updated:   report.Updated,
		Failed:    report.Failed,
		StartedAt: formatTime(report.StartedAt),
		Duration:  report.Duration.String(),
	})
}

type availabilityResponse struct {
	ShopID    string `json:"shopId"`
	Active    int64  `json:"active"`
	Available int64  `json:"available"`
	Hidden    int64  `json:"hidden"`
}

func (h *MaintenanceHandlers) availability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	report, err := h.maintenance.AvailabilityDiagnostic(ctx, chi.URLParam(r, "shopID"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("diagnostic_failed", err.Error(), http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, availabilityResponse{
		ShopID:    report.ShopID,
		Active:    report.Active,
		Available: report.Available,
		Hidden:    report.Hidden,
	})
}
