package firestore

import (
	"context"
	"errors"
	"time"

	domain "github.com/mealhub/api/internal/domain"
	pfirestore "github.com/mealhub/api/internal/platform/firestore"
)

const addressesCollection = "addresses"

type addressDocument struct {
	CustomerID string    `firestore:"customerId"`
	Recipient  string    `firestore:"recipient"`
	Phone      string    `firestore:"phone"`
	Line       string    `firestore:"line"`
	Ward       string    `firestore:"ward,omitempty"`
	District   string    `firestore:"district,omitempty"`
	City       string    `firestore:"city,omitempty"`
	Default    bool      `firestore:"default"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

func (d addressDocument) toDomain(id string) domain.Address {
	return domain.Address{
		ID:         id,
		CustomerID: d.CustomerID,
		Recipient:  d.Recipient,
		Phone:      d.Phone,
		Line:       d.Line,
		Ward:       d.Ward,
		District:   d.District,
		City:       d.City,
		Default:    d.Default,
		CreatedAt:  d.CreatedAt,
	}
}

type AddressRepository struct {
	addresses *pfirestore.BaseRepository[addressDocument]
}

func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{
		addresses: pfirestore.NewBaseRepository[addressDocument](provider, addressesCollection, nil, nil),
	}, nil
}

func (r *AddressRepository) FindByID(ctx context.Context, addressID string) (domain.Address, error) {
	doc, err := r.addresses.Get(ctx, addressID)
	if err != nil {
		return domain.Address{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}
