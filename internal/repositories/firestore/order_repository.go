package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"

	domain "github.com/mealhub/api/internal/domain"
	"github.com/mealhub/api/internal/platform/config"
	pfirestore "github.com/mealhub/api/internal/platform/firestore"
	"github.com/mealhub/api/internal/repositories"
)

const (
	ordersCollection    = "orders"
	cartItemsCollection = "cartItems"
	vouchersCollection  = "vouchers"

	fieldCustomerID = "customerId"
	fieldShopID     = "shopId"
	fieldShipperID  = "shipperId"
	fieldStatus     = "status"
	fieldCreatedAt  = "createdAt"
)

// OrderRepository persists orders and carries the two named atomic
// operations of the ordering flow. Every multi-document invariant lives
// here, inside a transaction, never in the service layer.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	vouchers *pfirestore.BaseRepository[voucherDocument]
	fallback *fallbackPlanner
	logger   *zap.Logger
}

func NewOrderRepository(provider *pfirestore.Provider, fallbackCfg config.QueryFallbackConfig, logger *zap.Logger) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	orders := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{
		provider: provider,
		orders:   orders,
		vouchers: pfirestore.NewBaseRepository[voucherDocument](provider, vouchersCollection, nil, nil),
		fallback: newFallbackPlanner(fallbackCfg, orders, logger),
		logger:   logger,
	}, nil
}

// CreateOrderAndClearCart writes the order, deletes the consumed cart items
// and consumes the voucher in one transaction. All reads happen before the
// first write, as the transaction protocol requires.
func (r *OrderRepository) CreateOrderAndClearCart(ctx context.Context, req repositories.CreateOrderTx) (domain.Order, error) {
	order := req.Order
	if order.ID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	orderRef, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	cartRefs := make([]*firestore.DocumentRef, 0, len(req.CartItemIDs))
	for _, itemID := range req.CartItemIDs {
		cartRefs = append(cartRefs, client.Collection(cartItemsCollection).Doc(itemID))
	}

	var voucherRef *firestore.DocumentRef
	if req.Voucher != nil {
		voucherRef, err = r.vouchers.DocumentRef(ctx, req.Voucher.VoucherID)
		if err != nil {
			return domain.Order{}, err
		}
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if voucherRef != nil {
			snap, err := tx.Get(voucherRef)
			if err != nil {
				return pfirestore.WrapError("vouchers.get", err)
			}
			var voucher voucherDocument
			if err := snap.DataTo(&voucher); err != nil {
				return fmt.Errorf("order repository: decode voucher %s: %w", snap.Ref.ID, err)
			}
			if verr := voucher.consumable(req.Voucher.Subtotal, order.CreatedAt); verr != nil {
				return verr
			}
			if err := tx.Update(voucherRef, []firestore.Update{
				{Path: "usedCount", Value: firestore.Increment(1)},
				{Path: "updatedAt", Value: order.CreatedAt.UTC()},
			}); err != nil {
				return pfirestore.WrapError("vouchers.update", err)
			}
		}

		if err := tx.Create(orderRef, newOrderDocument(order)); err != nil {
			return pfirestore.WrapError("orders.create", err)
		}

		for _, ref := range cartRefs {
			if err := tx.Delete(ref); err != nil {
				return pfirestore.WrapError("cartItems.delete", err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	return r.FindByID(ctx, order.ID)
}

// AcceptOrderAtomically is the first-to-claim-wins assignment. The claim
// conditions (status ready, shipperId explicitly null) are re-checked on a
// transactional read; only one concurrent claimant can commit.
func (r *OrderRepository) AcceptOrderAtomically(ctx context.Context, orderID string, claim repositories.ShipperClaim) (domain.Order, error) {
	orderRef, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(orderRef)
		if err != nil {
			return pfirestore.WrapError("orders.get", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("order repository: decode order %s: %w", snap.Ref.ID, err)
		}

		if doc.Status != string(domain.OrderStatusReady) || doc.ShipperID != nil {
			return repositories.ErrOrderTaken
		}

		claimedAt := claim.ClaimedAt.UTC()
		return pfirestore.WrapError("orders.update", tx.Update(orderRef, []firestore.Update{
			{Path: fieldShipperID, Value: claim.ShipperID},
			{Path: "shipper", Value: partyDocument{Name: claim.Snapshot.Name, Phone: claim.Snapshot.Phone}},
			{Path: "claimedAt", Value: claimedAt},
			{Path: "updatedAt", Value: claimedAt},
		}))
	})
	if err != nil {
		return domain.Order{}, err
	}

	return r.FindByID(ctx, orderID)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ApplyUpdate writes a partial status-transition update. The cash-on-delivery
// settlement rides along in the same document write so a delivered order can
// never be observed unpaid.
func (r *OrderRepository) ApplyUpdate(ctx context.Context, orderID string, update repositories.OrderUpdate) (domain.Order, error) {
	updates := []firestore.Update{
		{Path: fieldStatus, Value: string(update.Status)},
		{Path: "updatedAt", Value: update.UpdatedAt.UTC()},
	}
	for field, stamp := range update.Timestamps {
		updates = append(updates, firestore.Update{Path: field, Value: stamp.UTC()})
	}
	if update.CancelReason != nil {
		updates = append(updates, firestore.Update{Path: "cancelReason", Value: *update.CancelReason})
	}
	if update.CancelledBy != nil {
		updates = append(updates, firestore.Update{Path: "cancelledBy", Value: string(*update.CancelledBy)})
	}
	if update.MarkPaid {
		updates = append(updates, firestore.Update{Path: "paymentStatus", Value: string(domain.PaymentStatusPaid)})
	}
	if update.MarkRefunded {
		updates = append(updates, firestore.Update{Path: "paymentStatus", Value: string(domain.PaymentStatusRefunded)})
	}

	if _, err := r.orders.Update(ctx, orderID, updates); err != nil {
		return domain.Order{}, err
	}
	return r.FindByID(ctx, orderID)
}

// List pages through one actor scope ordered newest first. When the backing
// composite index is missing and the degraded path is enabled, the fallback
// planner answers instead.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	build := listQuery(filter)

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return build(q).
			OrderBy(fieldCreatedAt, firestore.Desc).
			Offset((filter.Page - 1) * filter.Limit).
			Limit(filter.Limit)
	})
	if err != nil {
		if r.fallback.eligible(err) {
			return r.fallback.list(ctx, filter)
		}
		return domain.Page[domain.Order]{}, err
	}

	total, err := r.orders.Count(ctx, build)
	if err != nil {
		if r.fallback.eligible(err) {
			return r.fallback.list(ctx, filter)
		}
		return domain.Page[domain.Order]{}, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return domain.NewPage(orders, filter.Page, filter.Limit, total), nil
}

// CountActive counts a shop's orders in the given statuses regardless of
// shipper assignment.
func (r *OrderRepository) CountActive(ctx context.Context, shopID string, active []domain.OrderStatus) (int64, error) {
	return r.orders.Count(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(fieldShopID, "==", shopID).
			Where(fieldStatus, "in", statusValues(active))
	})
}

// CountAvailable counts the same shop's orders through the availability
// filter (explicit-null shipperId). A shortfall against CountActive exposes
// documents the availability query cannot see.
func (r *OrderRepository) CountAvailable(ctx context.Context, shopID string) (int64, error) {
	return r.orders.Count(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(fieldShopID, "==", shopID).
			Where(fieldStatus, "==", string(domain.OrderStatusReady)).
			Where(fieldShipperID, "==", nil)
	})
}

// BackfillShipperField repairs legacy order documents that lack the
// shipperId field entirely. Absence cannot be queried, so the repair scans
// every active order and inspects the raw document data for the missing key.
// Writing an explicit null is idempotent: repaired documents carry the key
// and are skipped on the next run.
func (r *OrderRepository) BackfillShipperField(ctx context.Context, active []domain.OrderStatus, batchSize int) (repositories.BackfillResult, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.BackfillResult{}, err
	}

	raw := pfirestore.NewBaseRepository[map[string]any](r.provider, ordersCollection, nil, pfirestore.MapDecoder())
	docs, err := raw.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(fieldStatus, "in", statusValues(active))
	})
	if err != nil {
		return repositories.BackfillResult{}, err
	}

	result := repositories.BackfillResult{Scanned: len(docs)}
	writer := client.BulkWriter(ctx)
	defer writer.End()

	now := time.Now().UTC()
	pending := 0
	var jobs []*firestore.BulkWriterJob
	flush := func() {
		writer.Flush()
		for _, job := range jobs {
			if _, err := job.Results(); err != nil {
				result.Errors = append(result.Errors, pfirestore.WrapError("orders.backfill", err))
				continue
			}
			result.Updated++
		}
		jobs = nil
		pending = 0
	}

	for _, doc := range docs {
		if _, present := doc.Data[fieldShipperID]; present {
			continue
		}
		job, err := writer.Update(client.Collection(ordersCollection).Doc(doc.ID), []firestore.Update{
			{Path: fieldShipperID, Value: nil},
			{Path: "updatedAt", Value: now},
		})
		if err != nil {
			result.Errors = append(result.Errors, pfirestore.WrapError("orders.backfill", err))
			continue
		}
		jobs = append(jobs, job)
		pending++
		if pending >= batchSize {
			flush()
		}
	}
	flush()

	r.logger.Info("shipper field backfill finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("updated", result.Updated),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// listQuery builds the equality filters shared by the page query and the
// count aggregation.
func listQuery(filter repositories.OrderListFilter) pfirestore.QueryBuilder {
	return func(q firestore.Query) firestore.Query {
		switch {
		case filter.CustomerID != "":
			q = q.Where(fieldCustomerID, "==", filter.CustomerID)
		case filter.ShopID != "" && !filter.UnassignedOnly:
			q = q.Where(fieldShopID, "==", filter.ShopID)
		case filter.ShipperID != "":
			q = q.Where(fieldShipperID, "==", filter.ShipperID)
		}
		if filter.UnassignedOnly {
			if filter.ShopID != "" {
				q = q.Where(fieldShopID, "==", filter.ShopID)
			}
			q = q.Where(fieldShipperID, "==", nil).
				Where(fieldStatus, "==", string(domain.OrderStatusReady))
			return q
		}
		switch len(filter.Status) {
		case 0:
		case 1:
			q = q.Where(fieldStatus, "==", string(filter.Status[0]))
		default:
			q = q.Where(fieldStatus, "in", statusValues(filter.Status))
		}
		return q
	}
}

func statusValues(statuses []domain.OrderStatus) []string {
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}
	return values
}
