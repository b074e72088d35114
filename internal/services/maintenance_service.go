package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/mealhub/api/internal/domain"
	"github.com/mealhub/api/internal/repositories"
)

// defaultActiveStatuses covers every non-terminal state; terminal orders
// never appear in assignment queries, so missing fields there are harmless.
var defaultActiveStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusConfirmed,
	domain.OrderStatusPreparing,
	domain.OrderStatusReady,
	domain.OrderStatusShipping,
}

// MaintenanceServiceDeps bundles collaborators for the maintenance surface.
type MaintenanceServiceDeps struct {
	Orders         repositories.OrderRepository
	ActiveStatuses []domain.OrderStatus
	BatchSize      int
	Clock          func() time.Time
	Logger         *zap.Logger
}

type maintenanceService struct {
	orders    repositories.OrderRepository
	active    []domain.OrderStatus
	batchSize int
	clock     func() time.Time
	logger    *zap.Logger
}

// NewMaintenanceService wires the repair and diagnostic operations.
func NewMaintenanceService(deps MaintenanceServiceDeps) (MaintenanceService, error) {
	if deps.Orders == nil {
		return nil, errors.New("maintenance service: order repository is required")
	}

	active := deps.ActiveStatuses
	if len(active) == 0 {
		active = defaultActiveStatuses
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &maintenanceService{
		orders:    deps.Orders,
		active:    active,
		batchSize: deps.BatchSize,
		clock:     clock,
		logger:    logger,
	}, nil
}

// RunShipperBackfill repairs active orders whose documents predate the
// assignment field: each gets an explicit null written so availability
// filters can match them again. Safe to re-run; repaired documents carry
// the field and are skipped.
func (s *maintenanceService) RunShipperBackfill(ctx context.Context) (BackfillReport, error) {
	startedAt := s.clock()
	result, err := s.orders.BackfillShipperField(ctx, s.active, s.batchSize)
	if err != nil {
		return BackfillReport{}, err
	}

	report := BackfillReport{
		Scanned:   result.Scanned,
		Updated:   result.Updated,
		Failed:    len(result.Errors),
		StartedAt: startedAt,
		Duration:  s.clock().Sub(startedAt),
	}
	for _, writeErr := range result.Errors {
		s.logger.Error("backfill write failed", zap.Error(writeErr))
	}
	s.logger.Info("shipper backfill completed",
		zap.Int("scanned", report.Scanned),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// AvailabilityDiagnostic reports how many of a shop's ready orders the
// availability query can actually see. Hidden > 0 means legacy documents
// still lack the assignment field.
func (s *maintenanceService) AvailabilityDiagnostic(ctx context.Context, shopID string) (AvailabilityReport, error) {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return AvailabilityReport{}, errors.New("maintenance service: shop id is required")
	}

	active, err := s.orders.CountActive(ctx, shopID, []domain.OrderStatus{domain.OrderStatusReady})
	if err != nil {
		return AvailabilityReport{}, err
	}
	available, err := s.orders.CountAvailable(ctx, shopID)
	if err != nil {
		return AvailabilityReport{}, err
	}

	report := AvailabilityReport{
		ShopID:    shopID,
		Active:    active,
		Available: available,
		Hidden:    active - available,
	}
	if report.Hidden > 0 {
		s.logger.Warn("orders hidden from availability query",
			zap.String("shop_id", shopID),
			zap.Int64("hidden", report.Hidden),
		)
	}
	return report, nil
}
