package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	domain "github.com/mealhub/api/internal/domain"
	pfirestore "github.com/mealhub/api/internal/platform/firestore"
)

const productsCollection = "products"

type productDocument struct {
	ShopID    string `firestore:"shopId"`
	Name      string `firestore:"name"`
	Price     int64  `firestore:"price"`
	Available bool   `firestore:"available"`
	Deleted   bool   `firestore:"deleted"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:        id,
		ShopID:    d.ShopID,
		Name:      d.Name,
		Price:     d.Price,
		Available: d.Available,
		Deleted:   d.Deleted,
	}
}

type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
	}, nil
}

// FindByIDs resolves catalog entries in one batched read. Missing documents
// are simply absent from the result; the caller decides whether that is an
// error for its flow.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	found := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return found, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	refs := make([]*firestore.DocumentRef, 0, len(productIDs))
	for _, id := range productIDs {
		refs = append(refs, client.Collection(productsCollection).Doc(id))
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("products.getAll", err)
	}

	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		doc, err := r.products.Decode(ctx, snap)
		if err != nil {
			return nil, err
		}
		found[doc.ID] = doc.Data.toDomain(doc.ID)
	}
	return found, nil
}
