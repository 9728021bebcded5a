package models

import "github.com/shopspring/decimal"

// CartLineItem is one product entry in a cart. ID is unique within a cart.
type CartLineItem struct {
	ID       string          `json:"id" validate:"required"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Image    string          `json:"image,omitempty"`
	Category string          `json:"category,omitempty"`
}

// Snapshot is a point-in-time copy of a cart's items and total.
type Snapshot struct {
	Items    []CartLineItem  `json:"items"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency,omitempty"`
}

// IsEmpty reports whether the snapshot holds no items.
func (s Snapshot) IsEmpty() bool { return len(s.Items) == 0 }
