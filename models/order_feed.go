package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the read-only view of a marketplace order served by the order feed
type Order struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	CreatedAt   *time.Time      `json:"created_at"`
	Buyer       OrderBuyer      `json:"buyer"`
	Items       []OrderItem     `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	Currency    string          `json:"currency"`
	ShipmentID  string          `json:"shipment_id,omitempty"`
}

// OrderBuyer identifies who placed an order
type OrderBuyer struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname,omitempty"`
}

// OrderItem is a single line of an order
type OrderItem struct {
	ItemID    string          `json:"item_id"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// ShipmentAddress is the destination of an order's shipment
type ShipmentAddress struct {
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code,omitempty"`
}

// OrderQuery selects a page of orders from the feed
type OrderQuery struct {
	DateFrom time.Time
	DateTo   time.Time
	Limit    int
	Offset   int
}

// OrderPage is one page of the order feed
type OrderPage struct {
	Orders  []Order `json:"orders"`
	HasMore bool    `json:"has_more"`
	Total   int     `json:"total,omitempty"`
}

// IsPaid reports whether the order is in the paid state
func (o Order) IsPaid() bool {
	return strings.EqualFold(strings.TrimSpace(o.Status), "paid")
}

// IsMalformed reports orders that cannot be attributed at all
func (o Order) IsMalformed() bool {
	return o.ID == "" || o.CreatedAt == nil || o.CreatedAt.IsZero() || len(o.Items) == 0
}

// Titles returns the concatenated titles of all line items
func (o Order) Titles() string {
	parts := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		if t := strings.TrimSpace(it.Title); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Snapshot builds the fixed conversion snapshot for this order.
// item is the line that drove the match; when empty the first line is used.
func (o Order) Snapshot(itemID string, shipment *ShipmentAddress, capturedAt time.Time) ConversionSnapshot {
	snap := ConversionSnapshot{
		OrderID:       o.ID,
		Status:        o.Status,
		TotalAmount:   o.TotalAmount,
		PaidAmount:    o.PaidAmount,
		Currency:      o.Currency,
		BuyerID:       o.Buyer.ID,
		BuyerNickname: o.Buyer.Nickname,
		CapturedAt:    capturedAt,
	}
	if o.CreatedAt != nil {
		snap.OrderCreatedAt = o.CreatedAt.UTC()
	}

	var line *OrderItem
	for i := range o.Items {
		if itemID != "" && strings.EqualFold(o.Items[i].ItemID, itemID) {
			line = &o.Items[i]
			break
		}
	}
	if line == nil && len(o.Items) > 0 {
		line = &o.Items[0]
	}
	if line != nil {
		snap.ItemID = line.ItemID
		snap.ItemTitle = line.Title
		snap.ItemQuantity = line.Quantity
	}

	if shipment != nil {
		snap.ShippingCity = shipment.City
		snap.ShippingRegion = shipment.Region
		snap.ShippingPostalCode = shipment.PostalCode
	}
	return snap
}
