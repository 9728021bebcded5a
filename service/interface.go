package service

import (
	"context"

	models "storefront-cart/model"
)

type ServiceInterface interface {
	GetCart(ctx context.Context, session string) (CartDTO, error)
	AddToCart(ctx context.Context, session string, item models.CartLineItem) (bool, CartDTO, error)
	RemoveFromCart(ctx context.Context, session, productID string) (bool, CartDTO, error)
	ClearCart(ctx context.Context, session string) error
	Checkout(ctx context.Context, session string, in CheckoutInput) (*models.Order, error)
}
