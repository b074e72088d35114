package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/mealhub/api/internal/domain"
	pfirestore "github.com/mealhub/api/internal/platform/firestore"
)

const shopsCollection = "shops"

type shopDocument struct {
	OwnerID    string    `firestore:"ownerId"`
	Name       string    `firestore:"name"`
	Phone      string    `firestore:"phone"`
	Address    string    `firestore:"address"`
	Open       bool      `firestore:"open"`
	ShipperFee int64     `firestore:"shipperFee"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func (d shopDocument) toDomain(id string) domain.Shop {
	return domain.Shop{
		ID:         id,
		OwnerID:    d.OwnerID,
		Name:       d.Name,
		Phone:      d.Phone,
		Address:    d.Address,
		Open:       d.Open,
		ShipperFee: d.ShipperFee,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

type ShopRepository struct {
	shops *pfirestore.BaseRepository[shopDocument]
}

func NewShopRepository(provider *pfirestore.Provider) (*ShopRepository, error) {
	if provider == nil {
		return nil, errors.New("shop repository requires firestore provider")
	}
	return &ShopRepository{
		shops: pfirestore.NewBaseRepository[shopDocument](provider, shopsCollection, nil, nil),
	}, nil
}

func (r *ShopRepository) FindByID(ctx context.Context, shopID string) (domain.Shop, error) {
	doc, err := r.shops.Get(ctx, shopID)
	if err != nil {
		return domain.Shop{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ShopRepository) FindByOwner(ctx context.Context, ownerID string) (domain.Shop, error) {
	docs, err := r.shops.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("ownerId", "==", ownerID).Limit(1)
	})
	if err != nil {
		return domain.Shop{}, err
	}
	if len(docs) == 0 {
		return domain.Shop{}, pfirestore.NewNotFoundError("shops.findByOwner")
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}
