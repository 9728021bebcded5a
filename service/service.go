package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"storefront-cart/cart"
	"storefront-cart/checkout"
	models "storefront-cart/model"
)

// CartProvider resolves a session to its cart. *cart.Registry implements it.
type CartProvider interface {
	Get(ctx context.Context, session string) (*cart.Store, error)
}

// Submitter sends a cart to the order API. *checkout.Checkout implements it.
type Submitter interface {
	Submit(ctx context.Context, c *cart.Store, details checkout.Details) (*models.Order, error)
}

type Service struct {
	carts    CartProvider
	checkout Submitter
}

func NewService(carts CartProvider, submitter Submitter) *Service {
	return &Service{carts: carts, checkout: submitter}
}

var _ ServiceInterface = (*Service)(nil)

func (s *Service) GetCart(ctx context.Context, session string) (CartDTO, error) {
	c, err := s.cart(ctx, session)
	if err != nil {
		return CartDTO{}, err
	}
	return toCartDTO(c.Snapshot()), nil
}

func (s *Service) AddToCart(ctx context.Context, session string, item models.CartLineItem) (bool, CartDTO, error) {
	c, err := s.cart(ctx, session)
	if err != nil {
		return false, CartDTO{}, err
	}
	added, err := c.Add(ctx, item)
	if err != nil {
		return false, CartDTO{}, err
	}
	return added, toCartDTO(c.Snapshot()), nil
}

func (s *Service) RemoveFromCart(ctx context.Context, session, productID string) (bool, CartDTO, error) {
	if productID == "" {
		return false, CartDTO{}, errors.New("product id required")
	}
	c, err := s.cart(ctx, session)
	if err != nil {
		return false, CartDTO{}, err
	}
	removed, err := c.Remove(ctx, productID)
	if err != nil {
		return false, CartDTO{}, err
	}
	return removed, toCartDTO(c.Snapshot()), nil
}

func (s *Service) ClearCart(ctx context.Context, session string) error {
	c, err := s.cart(ctx, session)
	if err != nil {
		return err
	}
	return c.Clear(ctx)
}

func (s *Service) Checkout(ctx context.Context, session string, in CheckoutInput) (*models.Order, error) {
	c, err := s.cart(ctx, session)
	if err != nil {
		return nil, err
	}
	return s.checkout.Submit(ctx, c, checkout.Details{
		ShippingAddress: in.ShippingAddress,
		ShippingPhone:   in.ShippingPhone,
		Notes:           in.Notes,
		ShippingFee:     in.ShippingFee,
	})
}

func (s *Service) cart(ctx context.Context, session string) (*cart.Store, error) {
	if session == "" {
		return nil, cart.ErrNoSession
	}
	return s.carts.Get(ctx, session)
}

func toCartDTO(snap models.Snapshot) CartDTO {
	return CartDTO{
		Items:    snap.Items,
		Total:    snap.Total,
		Currency: snap.Currency,
		Count:    len(snap.Items),
		Empty:    snap.IsEmpty(),
	}
}

// DTOs
type CartDTO struct {
	Items    []models.CartLineItem `json:"items"`
	Total    decimal.Decimal       `json:"total"`
	Currency string                `json:"currency,omitempty"`
	Count    int                   `json:"count"`
	Empty    bool                  `json:"empty"`
}

type CheckoutInput struct {
	ShippingAddress string           `json:"shipping_address"`
	ShippingPhone   string           `json:"shipping_phone"`
	Notes           string           `json:"customer_notes,omitempty"`
	ShippingFee     *decimal.Decimal `json:"shipping_fee,omitempty"`
}
