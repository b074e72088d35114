package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mealhub/api/internal/services"
)

func TestWriteOrderErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", services.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
		{"empty cart is a missing resource", services.ErrCartEmpty, http.StatusNotFound, "cart_empty"},
		{"claim race lost", services.ErrOrderTaken, http.StatusConflict, "order_taken"},
		{"incomplete profile is a bad request", services.ErrShipperProfileIncomplete, http.StatusBadRequest, "profile_incomplete"},
		{"shipper not ready", services.ErrShipperNotReady, http.StatusConflict, "shipper_not_ready"},
		{"forbidden", services.ErrOrderForbidden, http.StatusForbidden, "forbidden"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeOrderError(context.Background(), rec, tc.err)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			payload := decodeBody(t, rec)
			if payload["error"] != tc.wantCode {
				t.Errorf("error code = %v, want %s", payload["error"], tc.wantCode)
			}
		})
	}
}
