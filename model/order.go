package models

import "github.com/shopspring/decimal"

// OrderItem is one line of an order submission.
type OrderItem struct {
	ProductID       string          `json:"product_id"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
	ProductName     string          `json:"product_name"`
}

// OrderRequest is the payload accepted by the remote order API.
type OrderRequest struct {
	Items           []OrderItem      `json:"items"`
	ShippingAddress string           `json:"shipping_address"`
	ShippingPhone   string           `json:"shipping_phone"`
	CustomerNotes   string           `json:"customer_notes,omitempty"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	ShippingFee     *decimal.Decimal `json:"shipping_fee,omitempty"`
}

// Order is the record returned by the remote order API. Only the fields the
// storefront reads are mapped.
type Order struct {
	ID              string           `json:"id"`
	Status          string           `json:"status"`
	Items           []OrderItem      `json:"items"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	ShippingFee     *decimal.Decimal `json:"shipping_fee,omitempty"`
	ShippingAddress string           `json:"shipping_address"`
	ShippingPhone   string           `json:"shipping_phone"`
	CustomerNotes   string           `json:"customer_notes,omitempty"`
	CreatedAt       string           `json:"created_at,omitempty"`
}
