package firestore

import (
	"context"
	"errors"
	"sort"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"

	domain "github.com/mealhub/api/internal/domain"
	"github.com/mealhub/api/internal/platform/config"
	pfirestore "github.com/mealhub/api/internal/platform/firestore"
	"github.com/mealhub/api/internal/repositories"
)

// fallbackPlanner answers list queries while the composite index backing the
// normal plan is missing or still building. It fetches a bounded set on the
// single owner-scope equality filter, which needs no composite index, and
// applies the status filter, ordering and pagination in memory. Results may
// be incomplete once the owner's order count exceeds the fetch cap, so pages
// are marked approximate.
type fallbackPlanner struct {
	cfg    config.QueryFallbackConfig
	orders *pfirestore.BaseRepository[orderDocument]
	logger *zap.Logger
}

func newFallbackPlanner(cfg config.QueryFallbackConfig, orders *pfirestore.BaseRepository[orderDocument], logger *zap.Logger) *fallbackPlanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fallbackPlanner{cfg: cfg, orders: orders, logger: logger}
}

// eligible reports whether the failed query should be retried on the
// degraded plan. Only the index-unavailable failure mode qualifies.
func (p *fallbackPlanner) eligible(err error) bool {
	if p == nil || !p.cfg.Enabled || err == nil {
		return false
	}
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsFailedPrecondition()
}

func (p *fallbackPlanner) list(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	field, value := ownerScope(filter)
	if field == "" {
		return domain.Page[domain.Order]{}, errors.New("order repository: fallback requires an owner scope")
	}

	p.logger.Warn("order list falling back to degraded query plan",
		zap.String("scope_field", field),
		zap.Int("fetch_cap", p.cfg.FetchCap),
	)

	docs, err := p.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", value).Limit(p.cfg.FetchCap)
	})
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	capHit := len(docs) >= p.cfg.FetchCap

	wanted := make(map[string]struct{}, len(filter.Status))
	for _, status := range filter.Status {
		wanted[string(status)] = struct{}{}
	}

	matched := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		if filter.UnassignedOnly {
			if doc.Data.ShipperID != nil || doc.Data.Status != string(domain.OrderStatusReady) {
				continue
			}
		} else if len(wanted) > 0 {
			if _, ok := wanted[doc.Data.Status]; !ok {
				continue
			}
		}
		matched = append(matched, doc.Data.toDomain(doc.ID))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	start := (filter.Page - 1) * filter.Limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}

	page := domain.NewPage(matched[start:end], filter.Page, filter.Limit, int64(len(matched)))
	page.Approximate = capHit
	return page, nil
}

// ownerScope picks the single equality filter the degraded plan runs on.
func ownerScope(filter repositories.OrderListFilter) (string, any) {
	switch {
	case filter.CustomerID != "":
		return fieldCustomerID, filter.CustomerID
	case filter.ShopID != "":
		return fieldShopID, filter.ShopID
	case filter.ShipperID != "":
		return fieldShipperID, filter.ShipperID
	case filter.UnassignedOnly:
		return fieldShipperID, nil
	}
	return "", nil
}
