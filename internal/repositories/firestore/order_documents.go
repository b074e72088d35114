package firestore

import (
	"strings"
	"time"

	domain "github.com/mealhub/api/internal/domain"
)

type partyDocument struct {
	Name  string `firestore:"name"`
	Phone string `firestore:"phone"`
}

type shopSnapshotDocument struct {
	Name    string `firestore:"name"`
	Phone   string `firestore:"phone"`
	Address string `firestore:"address"`
}

type orderItemDocument struct {
	ProductID   string `firestore:"productId"`
	ProductName string `firestore:"productName"`
	Quantity    int    `firestore:"quantity"`
	UnitPrice   int64  `firestore:"price"`
	Subtotal    int64  `firestore:"subtotal"`
}

type deliveryAddressDocument struct {
	Recipient string `firestore:"recipient"`
	Phone     string `firestore:"phone"`
	Line      string `firestore:"line"`
	Ward      string `firestore:"ward,omitempty"`
	District  string `firestore:"district,omitempty"`
	City      string `firestore:"city,omitempty"`
	Note      string `firestore:"note,omitempty"`
}

// orderDocument is the stored shape of an order.
//
// ShipperID must not carry omitempty: an unassigned order stores the field
// as an explicit null, because equality filters match only explicit values.
// An absent field would silently hide the order from availability queries.
type orderDocument struct {
	OrderNumber string `firestore:"orderNumber"`

	CustomerID string  `firestore:"customerId"`
	ShopID     string  `firestore:"shopId"`
	ShipperID  *string `firestore:"shipperId"`

	Customer partyDocument        `firestore:"customer"`
	Shop     shopSnapshotDocument `firestore:"shop"`
	Shipper  *partyDocument       `firestore:"shipper,omitempty"`

	Items []orderItemDocument `firestore:"items"`

	Subtotal      int64   `firestore:"subtotal"`
	ShipFee       int64   `firestore:"shipFee"`
	ShipperPayout int64   `firestore:"shipperPayout"`
	Discount      int64   `firestore:"discount"`
	Total         int64   `firestore:"total"`
	VoucherID     *string `firestore:"voucherId,omitempty"`
	VoucherCode   *string `firestore:"voucherCode,omitempty"`

	Status        string  `firestore:"status"`
	PaymentStatus string  `firestore:"paymentStatus"`
	PaymentMethod string  `firestore:"paymentMethod"`
	PaymentRef    *string `firestore:"paymentRef,omitempty"`

	Address      deliveryAddressDocument `firestore:"address"`
	DeliveryNote string                  `firestore:"deliveryNote,omitempty"`

	ConfirmedAt  *time.Time `firestore:"confirmedAt,omitempty"`
	PreparingAt  *time.Time `firestore:"preparingAt,omitempty"`
	ReadyAt      *time.Time `firestore:"readyAt,omitempty"`
	ClaimedAt    *time.Time `firestore:"claimedAt,omitempty"`
	ShippingAt   *time.Time `firestore:"shippingAt,omitempty"`
	DeliveredAt  *time.Time `firestore:"deliveredAt,omitempty"`
	CancelledAt  *time.Time `firestore:"cancelledAt,omitempty"`
	CancelReason *string    `firestore:"cancelReason,omitempty"`
	CancelledBy  *string    `firestore:"cancelledBy,omitempty"`

	ReviewID   *string    `firestore:"reviewId,omitempty"`
	ReviewedAt *time.Time `firestore:"reviewedAt,omitempty"`

	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		CustomerID:  strings.TrimSpace(order.CustomerID),
		ShopID:      strings.TrimSpace(order.ShopID),
		ShipperID:   order.ShipperID,
		Customer:    partyDocument{Name: order.Customer.Name, Phone: order.Customer.Phone},
		Shop: shopSnapshotDocument{
			Name:    order.Shop.Name,
			Phone:   order.Shop.Phone,
			Address: order.Shop.Address,
		},
		Subtotal:      order.Subtotal,
		ShipFee:       order.ShipFee,
		ShipperPayout: order.ShipperPayout,
		Discount:      order.Discount,
		Total:         order.Total,
		VoucherID:     order.VoucherID,
		VoucherCode:   order.VoucherCode,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: string(order.PaymentMethod),
		PaymentRef:    order.PaymentRef,
		Address: deliveryAddressDocument{
			Recipient: order.Address.Recipient,
			Phone:     order.Address.Phone,
			Line:      order.Address.Line,
			Ward:      order.Address.Ward,
			District:  order.Address.District,
			City:      order.Address.City,
			Note:      order.Address.Note,
		},
		DeliveryNote: order.DeliveryNote,
		ConfirmedAt:  order.ConfirmedAt,
		PreparingAt:  order.PreparingAt,
		ReadyAt:      order.ReadyAt,
		ClaimedAt:    order.ClaimedAt,
		ShippingAt:   order.ShippingAt,
		DeliveredAt:  order.DeliveredAt,
		CancelledAt:  order.CancelledAt,
		CancelReason: order.CancelReason,
		ReviewID:     order.ReviewID,
		ReviewedAt:   order.ReviewedAt,
		CreatedAt:    order.CreatedAt.UTC(),
		UpdatedAt:    order.UpdatedAt.UTC(),
	}

	if order.Shipper != nil {
		doc.Shipper = &partyDocument{Name: order.Shipper.Name, Phone: order.Shipper.Phone}
	}
	if order.CancelledBy != nil {
		value := string(*order.CancelledBy)
		doc.CancelledBy = &value
	}

	doc.Items = make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		})
	}

	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:          id,
		OrderNumber: d.OrderNumber,
		CustomerID:  d.CustomerID,
		ShopID:      d.ShopID,
		ShipperID:   d.ShipperID,
		Customer:    domain.PartySnapshot{Name: d.Customer.Name, Phone: d.Customer.Phone},
		Shop: domain.ShopSnapshot{
			Name:    d.Shop.Name,
			Phone:   d.Shop.Phone,
			Address: d.Shop.Address,
		},
		Subtotal:      d.Subtotal,
		ShipFee:       d.ShipFee,
		ShipperPayout: d.ShipperPayout,
		Discount:      d.Discount,
		Total:         d.Total,
		VoucherID:     d.VoucherID,
		VoucherCode:   d.VoucherCode,
		Status:        domain.OrderStatus(d.Status),
		PaymentStatus: domain.PaymentStatus(d.PaymentStatus),
		PaymentMethod: domain.PaymentMethod(d.PaymentMethod),
		PaymentRef:    d.PaymentRef,
		Address: domain.DeliveryAddress{
			Recipient: d.Address.Recipient,
			Phone:     d.Address.Phone,
			Line:      d.Address.Line,
			Ward:      d.Address.Ward,
			District:  d.Address.District,
			City:      d.Address.City,
			Note:      d.Address.Note,
		},
		DeliveryNote: d.DeliveryNote,
		ConfirmedAt:  d.ConfirmedAt,
		PreparingAt:  d.PreparingAt,
		ReadyAt:      d.ReadyAt,
		ClaimedAt:    d.ClaimedAt,
		ShippingAt:   d.ShippingAt,
		DeliveredAt:  d.DeliveredAt,
		CancelledAt:  d.CancelledAt,
		CancelReason: d.CancelReason,
		ReviewID:     d.ReviewID,
		ReviewedAt:   d.ReviewedAt,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}

	if d.Shipper != nil {
		order.Shipper = &domain.PartySnapshot{Name: d.Shipper.Name, Phone: d.Shipper.Phone}
	}
	if d.CancelledBy != nil {
		party := domain.CancelParty(*d.CancelledBy)
		order.CancelledBy = &party
	}

	order.Items = make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		})
	}

	return order
}
