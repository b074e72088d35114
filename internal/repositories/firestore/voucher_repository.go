package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/mealhub/api/internal/domain"
	pfirestore "github.com/mealhub/api/internal/platform/firestore"
	"github.com/mealhub/api/internal/repositories"
)

type voucherDocument struct {
	Code        string     `firestore:"code"`
	Amount      int64      `firestore:"amount"`
	Percent     int        `firestore:"percent"`
	MinSubtotal int64      `firestore:"minSubtotal"`
	UsageLimit  int        `firestore:"usageLimit"`
	UsedCount   int        `firestore:"usedCount"`
	Active      bool       `firestore:"active"`
	ExpiresAt   *time.Time `firestore:"expiresAt,omitempty"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
}

func (d voucherDocument) toDomain(id string) domain.Voucher {
	return domain.Voucher{
		ID:          id,
		Code:        d.Code,
		Amount:      d.Amount,
		Percent:     d.Percent,
		MinSubtotal: d.MinSubtotal,
		UsageLimit:  d.UsageLimit,
		UsedCount:   d.UsedCount,
		Active:      d.Active,
		ExpiresAt:   d.ExpiresAt,
	}
}

// consumable re-validates the voucher on the transactional read; any failure
// rolls back the whole order-creation transaction.
func (d voucherDocument) consumable(subtotal int64, at time.Time) *repositories.VoucherError {
	switch {
	case !d.Active:
		return &repositories.VoucherError{Code: "voucher_inactive", Message: "voucher is no longer active"}
	case d.ExpiresAt != nil && d.ExpiresAt.Before(at):
		return &repositories.VoucherError{Code: "voucher_expired", Message: "voucher has expired"}
	case d.UsageLimit > 0 && d.UsedCount >= d.UsageLimit:
		return &repositories.VoucherError{Code: "voucher_exhausted", Message: "voucher usage limit reached"}
	case subtotal < d.MinSubtotal:
		return &repositories.VoucherError{Code: "voucher_min_subtotal", Message: "order subtotal below voucher minimum"}
	}
	return nil
}

type VoucherRepository struct {
	vouchers *pfirestore.BaseRepository[voucherDocument]
}

func NewVoucherRepository(provider *pfirestore.Provider) (*VoucherRepository, error) {
	if provider == nil {
		return nil, errors.New("voucher repository requires firestore provider")
	}
	return &VoucherRepository{
		vouchers: pfirestore.NewBaseRepository[voucherDocument](provider, vouchersCollection, nil, nil),
	}, nil
}

func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (domain.Voucher, error) {
	code = strings.TrimSpace(strings.ToUpper(code))
	if code == "" {
		return domain.Voucher{}, errors.New("voucher repository: code is required")
	}

	docs, err := r.vouchers.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", code).Limit(1)
	})
	if err != nil {
		return domain.Voucher{}, err
	}
	if len(docs) == 0 {
		return domain.Voucher{}, pfirestore.NewNotFoundError("vouchers.findByCode")
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}
