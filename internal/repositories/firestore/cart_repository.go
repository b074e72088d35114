package firestore

import (
	"context"
	"errors"
	"sort"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/mealhub/api/internal/domain"
	pfirestore "github.com/mealhub/api/internal/platform/firestore"
)

type cartItemDocument struct {
	CustomerID  string    `firestore:"customerId"`
	ShopID      string    `firestore:"shopId"`
	ProductID   string    `firestore:"productId"`
	ProductName string    `firestore:"productName"`
	UnitPrice   int64     `firestore:"price"`
	Quantity    int       `firestore:"quantity"`
	AddedAt     time.Time `firestore:"addedAt"`
}

func (d cartItemDocument) toDomain(id string) domain.CartItem {
	return domain.CartItem{
		ID:          id,
		CustomerID:  d.CustomerID,
		ShopID:      d.ShopID,
		ProductID:   d.ProductID,
		ProductName: d.ProductName,
		UnitPrice:   d.UnitPrice,
		Quantity:    d.Quantity,
		AddedAt:     d.AddedAt,
	}
}

type CartRepository struct {
	items *pfirestore.BaseRepository[cartItemDocument]
}

func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		items: pfirestore.NewBaseRepository[cartItemDocument](provider, cartItemsCollection, nil, nil),
	}, nil
}

// GetGroup reads the customer's cart items for one shop. Ordering happens in
// memory; the two equality filters need only single-field indexes.
func (r *CartRepository) GetGroup(ctx context.Context, customerID, shopID string) (domain.CartGroup, error) {
	docs, err := r.items.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(fieldCustomerID, "==", customerID).
			Where(fieldShopID, "==", shopID)
	})
	if err != nil {
		return domain.CartGroup{}, err
	}

	group := domain.CartGroup{CustomerID: customerID, ShopID: shopID}
	for _, doc := range docs {
		group.Items = append(group.Items, doc.Data.toDomain(doc.ID))
	}
	sort.Slice(group.Items, func(i, j int) bool {
		return group.Items[i].AddedAt.Before(group.Items[j].AddedAt)
	})
	return group, nil
}
