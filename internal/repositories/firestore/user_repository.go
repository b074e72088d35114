package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/mealhub/api/internal/domain"
	pfirestore "github.com/mealhub/api/internal/platform/firestore"
)

const usersCollection = "users"

type userDocument struct {
	Role         string    `firestore:"role"`
	Name         string    `firestore:"name"`
	Phone        string    `firestore:"phone"`
	ShopID       string    `firestore:"shopId,omitempty"`
	Availability string    `firestore:"availability,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func (d userDocument) toDomain(id string) domain.User {
	return domain.User{
		ID:           id,
		Role:         domain.UserRole(d.Role),
		Name:         d.Name,
		Phone:        d.Phone,
		ShopID:       d.ShopID,
		Availability: domain.ShipperAvailability(d.Availability),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type UserRepository struct {
	provider *pfirestore.Provider
	users    *pfirestore.BaseRepository[userDocument]
}

func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		provider: provider,
		users:    pfirestore.NewBaseRepository[userDocument](provider, usersCollection, nil, nil),
	}, nil
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	doc, err := r.users.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByIDs resolves display snapshots for list rendering in one batched read.
func (r *UserRepository) FindByIDs(ctx context.Context, userIDs []string) (map[string]domain.User, error) {
	found := make(map[string]domain.User, len(userIDs))
	if len(userIDs) == 0 {
		return found, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	refs := make([]*firestore.DocumentRef, 0, len(userIDs))
	for _, id := range userIDs {
		refs = append(refs, client.Collection(usersCollection).Doc(id))
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("users.getAll", err)
	}

	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		doc, err := r.users.Decode(ctx, snap)
		if err != nil {
			return nil, err
		}
		found[doc.ID] = doc.Data.toDomain(doc.ID)
	}
	return found, nil
}

func (r *UserRepository) SetAvailability(ctx context.Context, userID string, availability domain.ShipperAvailability) error {
	_, err := r.users.Update(ctx, userID, []firestore.Update{
		{Path: "availability", Value: string(availability)},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	return err
}
