// Package checkout turns a cart into an order submission for the remote order
// API.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront-cart/cart"
	models "storefront-cart/model"
)

var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrInvalidDetails = errors.New("invalid checkout details")
	ErrMixedCurrency  = errors.New("cart mixes currencies")
	// ErrOrderSubmit wraps any failure returned by the OrderClient.
	ErrOrderSubmit = errors.New("order submission failed")
)

// OrderClient submits orders to the remote order API.
type OrderClient interface {
	CreateOrder(ctx context.Context, req models.OrderRequest, idempotencyKey string) (*models.Order, error)
}

// ClearPolicy decides what happens to the cart after an order is accepted.
type ClearPolicy int

const (
	// ClearNever leaves the cart untouched; the caller clears it if it wants to.
	ClearNever ClearPolicy = iota
	// ClearOnSuccess clears the cart once the order API returns an order.
	ClearOnSuccess
)

func (p ClearPolicy) String() string {
	switch p {
	case ClearOnSuccess:
		return "clear_on_success"
	default:
		return "never"
	}
}

// Details is what the shopper supplies at checkout besides the cart.
type Details struct {
	ShippingAddress string           `validate:"required"`
	ShippingPhone   string           `validate:"required"`
	Notes           string           `validate:"max=1000"`
	ShippingFee     *decimal.Decimal `validate:"-"`
}

var validate = validator.New()

// Checkout submits carts through an OrderClient.
type Checkout struct {
	client OrderClient
	policy ClearPolicy
	logger *zap.Logger
	newKey func() string
}

type Option func(*Checkout)

func WithClearPolicy(p ClearPolicy) Option {
	return func(c *Checkout) { c.policy = p }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Checkout) { c.logger = logger }
}

func New(client OrderClient, opts ...Option) *Checkout {
	c := &Checkout{
		client: client,
		policy: ClearNever,
		logger: zap.NewNop(),
		newKey: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy reports the configured clear policy.
func (c *Checkout) Policy() ClearPolicy { return c.policy }

// Submit sends a snapshot of the cart to the order API. An empty cart is
// refused before any request is made. The cart is only cleared when the
// policy says so and the API accepted the order; a failed clear is logged and
// does not fail the checkout.
func (c *Checkout) Submit(ctx context.Context, sc *cart.Store, details Details) (*models.Order, error) {
	if sc.IsEmpty() {
		return nil, ErrEmptyCart
	}

	req, err := BuildOrderRequest(sc.Snapshot(), details)
	if err != nil {
		return nil, err
	}

	key := c.newKey()
	order, err := c.client.CreateOrder(ctx, req, key)
	if err != nil {
		c.logger.Warn("order submission failed",
			zap.String("idempotency_key", key), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrOrderSubmit, err)
	}

	c.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("idempotency_key", key),
		zap.Int("items", len(req.Items)),
		zap.String("total", req.TotalAmount.String()),
	)

	if c.policy == ClearOnSuccess {
		if err := sc.Clear(ctx); err != nil {
			c.logger.Error("order created but cart not cleared",
				zap.String("order_id", order.ID), zap.Error(err))
		}
	}
	return order, nil
}

// BuildOrderRequest packages a snapshot and checkout details into the order
// API payload. Each cart line becomes one order line of quantity 1.
func BuildOrderRequest(snap models.Snapshot, details Details) (models.OrderRequest, error) {
	if snap.IsEmpty() {
		return models.OrderRequest{}, ErrEmptyCart
	}
	if err := validate.Struct(details); err != nil {
		return models.OrderRequest{}, fmt.Errorf("%w: %v", ErrInvalidDetails, err)
	}
	if details.ShippingFee != nil {
		if err := cart.CheckAmount(*details.ShippingFee); err != nil {
			return models.OrderRequest{}, fmt.Errorf("%w: shipping fee: %v", ErrInvalidDetails, err)
		}
	}

	items := make([]models.OrderItem, len(snap.Items))
	for i, it := range snap.Items {
		if it.Currency != snap.Currency {
			return models.OrderRequest{}, fmt.Errorf("%w: %q and %q", ErrMixedCurrency, snap.Currency, it.Currency)
		}
		items[i] = models.OrderItem{
			ProductID:       it.ID,
			Quantity:        1,
			PriceAtPurchase: it.Price,
			ProductName:     it.Name,
		}
	}

	return models.OrderRequest{
		Items:           items,
		ShippingAddress: details.ShippingAddress,
		ShippingPhone:   details.ShippingPhone,
		CustomerNotes:   details.Notes,
		TotalAmount:     snap.Total,
		ShippingFee:     details.ShippingFee,
	}, nil
}
