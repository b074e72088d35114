package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.uber.org/zap"
)

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeProcessor charges and refunds card orders through Stripe
// PaymentIntents.
type StripeProcessor struct {
	intents stripeIntentAPI
	refunds stripeRefundAPI
	logger  *zap.Logger
}

// StripeConfig wires the Stripe API client. Clients may be overridden in
// tests.
type StripeConfig struct {
	APIKey  string
	Intents stripeIntentAPI
	Refunds stripeRefundAPI
	Logger  *zap.Logger
}

// NewStripeProcessor constructs the Stripe-backed processor.
func NewStripeProcessor(cfg StripeConfig) (*StripeProcessor, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	intents := cfg.Intents
	refunds := cfg.Refunds
	if intents == nil || refunds == nil {
		key := strings.TrimSpace(cfg.APIKey)
		if key == "" {
			return nil, errors.New("stripe: api key is required")
		}
		api := client.New(key, nil)
		if intents == nil {
			intents = api.PaymentIntents
		}
		if refunds == nil {
			refunds = api.Refunds
		}
	}

	return &StripeProcessor{intents: intents, refunds: refunds, logger: logger}, nil
}

// Charge creates and confirms a PaymentIntent for the order total.
func (p *StripeProcessor) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if p == nil {
		return ChargeResult{}, errors.New("stripe: processor is nil")
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(currency),
		Confirm:       stripe.Bool(true),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		Metadata: map[string]string{
			"order_id":    req.OrderID,
			"customer_id": req.CustomerID,
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}

	intent, err := p.intents.New(params)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusProcessing:
		p.logger.Info("stripe charge captured",
			zap.String("order_id", req.OrderID),
			zap.String("payment_intent", intent.ID),
		)
		return ChargeResult{Reference: intent.ID, Status: StatusSucceeded}, nil
	default:
		return ChargeResult{Reference: intent.ID, Status: StatusFailed},
			fmt.Errorf("%w: intent %s status %s", ErrPaymentDeclined, intent.ID, intent.Status)
	}
}

// Refund reverses the PaymentIntent recorded on the order.
func (p *StripeProcessor) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if p == nil {
		return RefundResult{}, errors.New("stripe: processor is nil")
	}
	if strings.TrimSpace(req.PaymentRef) == "" {
		return RefundResult{}, errors.New("stripe: payment reference is required")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentRef),
	}
	params.Context = ctx
	if req.Amount > 0 {
		params.Amount = stripe.Int64(req.Amount)
	}
	if reason := mapRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}

	refund, err := p.refunds.New(params)
	if err != nil {
		return RefundResult{}, fmt.Errorf("stripe: refund payment intent: %w", err)
	}

	p.logger.Info("stripe refund issued",
		zap.String("order_id", req.OrderID),
		zap.String("payment_intent", req.PaymentRef),
		zap.String("refund", refund.ID),
	)
	return RefundResult{Reference: refund.ID}, nil
}

func mapRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}
