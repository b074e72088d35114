package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Status normalises processor payment states.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// ErrPaymentDeclined is returned when the processor rejects a charge.
var ErrPaymentDeclined = errors.New("payments: declined")

// ChargeRequest captures an upfront card charge for an order.
type ChargeRequest struct {
	OrderID         string
	CustomerID      string
	Amount          int64
	Currency        string
	PaymentMethodID string
	// IdempotencyKey dedupes retried charges at the processor; order ID
	// scoped so a retried creation cannot double-charge.
	IdempotencyKey string
}

// ChargeResult is the processor reference recorded on the order.
type ChargeResult struct {
	Reference string
	Status    Status
}

// RefundRequest reverses a captured charge when a paid order is cancelled.
type RefundRequest struct {
	OrderID    string
	PaymentRef string
	Amount     int64
	Reason     string
}

// RefundResult carries the processor refund reference.
type RefundResult struct {
	Reference string
}

// Processor is the payment boundary consumed by the order flow. Cash on
// delivery never reaches it; card orders charge at creation and refund on
// cancellation.
type Processor interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

// NoopProcessor simulates a processor for local development and tests. Every
// charge succeeds and every refund is acknowledged.
type NoopProcessor struct {
	logger *zap.Logger
}

// NewNoopProcessor constructs the simulated processor.
func NewNoopProcessor(logger *zap.Logger) *NoopProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoopProcessor{logger: logger}
}

func (p *NoopProcessor) Charge(_ context.Context, req ChargeRequest) (ChargeResult, error) {
	ref := fmt.Sprintf("sim_%s_%d", req.OrderID, time.Now().UnixMilli())
	p.logger.Info("simulated charge",
		zap.String("order_id", req.OrderID),
		zap.Int64("amount", req.Amount),
		zap.String("reference", ref),
	)
	return ChargeResult{Reference: ref, Status: StatusSucceeded}, nil
}

func (p *NoopProcessor) Refund(_ context.Context, req RefundRequest) (RefundResult, error) {
	ref := "sim_refund_" + req.OrderID
	p.logger.Info("simulated refund",
		zap.String("order_id", req.OrderID),
		zap.String("payment_ref", req.PaymentRef),
		zap.Int64("amount", req.Amount),
	)
	return RefundResult{Reference: ref}, nil
}
