// Package cart holds the shopping cart: an ordered list of unique line items
// and their total, written through to a store.KV on every mutation.
//
// The in-memory state is the source of truth once loaded. Reads never go back
// to the backend, so a later write by another process sharing the same keys is
// only observed on the next Load (last writer wins).
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	models "storefront-cart/model"
	"storefront-cart/store"
)

// Keys the cart is stored under when no other keys are configured.
const (
	DefaultItemsKey = "cartItems"
	DefaultTotalKey = "cartTotal"
)

var (
	// ErrInvalidItem is returned by Add for an item with no id or a price
	// CheckAmount rejects.
	ErrInvalidItem = errors.New("invalid cart item")
	// ErrPersist is returned when the backend rejects a write. The cart is
	// left as it was before the call.
	ErrPersist = errors.New("persist cart")
)

// Amount bounds. Decimal addition rescales to the smaller exponent, so the
// cost of a sum grows with the exponent spread; 1e900000000 is refused here
// instead of being summed.
const (
	maxAmountExponent = 18
	maxAmountDigits   = 30
)

// ErrAmountOutOfRange is wrapped by CheckAmount failures.
var ErrAmountOutOfRange = errors.New("amount out of range")

var validate = validator.New()

// CheckAmount reports whether d is a usable money amount: not negative, an
// exponent within ±18 and at most 30 significant digits.
func CheckAmount(d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: must be >= 0", ErrAmountOutOfRange)
	}
	if exp := d.Exponent(); exp > maxAmountExponent || exp < -maxAmountExponent {
		return fmt.Errorf("%w: exponent %d", ErrAmountOutOfRange, exp)
	}
	if d.NumDigits() > maxAmountDigits {
		return fmt.Errorf("%w: more than %d digits", ErrAmountOutOfRange, maxAmountDigits)
	}
	return nil
}

// Store is the cart. It is safe for concurrent use.
type Store struct {
	kv       store.KV
	itemsKey string
	totalKey string
	logger   *zap.Logger

	mu    sync.RWMutex
	items []models.CartLineItem
	total decimal.Decimal
}

// Option configures a Store.
type Option func(*Store)

// WithKeys overrides the storage keys.
func WithKeys(itemsKey, totalKey string) Option {
	return func(s *Store) {
		s.itemsKey = itemsKey
		s.totalKey = totalKey
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Load builds a cart from whatever kv holds under the item key. It never
// fails: a missing, unreadable or malformed value yields an empty cart.
// The total is always recomputed from the items; the stored total is not read.
func Load(ctx context.Context, kv store.KV, opts ...Option) *Store {
	s := &Store{
		kv:       kv,
		itemsKey: DefaultItemsKey,
		totalKey: DefaultTotalKey,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, err := kv.Get(ctx, s.itemsKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		s.logger.Warn("cart storage unreadable, starting empty",
			zap.String("key", s.itemsKey), zap.Error(err))
	default:
		items, err := decodeItems(raw)
		if err != nil {
			s.logger.Warn("discarding malformed persisted cart",
				zap.String("key", s.itemsKey), zap.Error(err))
			break
		}
		s.items = items
	}

	s.total = sum(s.items)
	return s
}

// Add appends item unless an item with the same id is already present, in
// which case nothing changes and added is false.
func (s *Store) Add(ctx context.Context, item models.CartLineItem) (added bool, err error) {
	if err := validateItem(item); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(item.ID) >= 0 {
		return false, nil
	}

	next := make([]models.CartLineItem, len(s.items), len(s.items)+1)
	copy(next, s.items)
	next = append(next, item)

	if err := s.commit(ctx, next); err != nil {
		return false, err
	}
	s.logger.Debug("item added", zap.String("id", item.ID), zap.String("total", s.total.String()))
	return true, nil
}

// Remove drops the item with the given id. Removing an absent id is a no-op
// and does not touch the backend.
func (s *Store) Remove(ctx context.Context, id string) (removed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return false, nil
	}

	next := make([]models.CartLineItem, 0, len(s.items)-1)
	next = append(next, s.items[:idx]...)
	next = append(next, s.items[idx+1:]...)

	if err := s.commit(ctx, next); err != nil {
		return false, err
	}
	s.logger.Debug("item removed", zap.String("id", id), zap.String("total", s.total.String()))
	return true, nil
}

// Clear empties the cart and erases both keys from the backend, so the next
// Load behaves like a fresh install.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, s.itemsKey, s.totalKey); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.items = nil
	s.total = decimal.Zero
	return nil
}

// IsEmpty reports whether the cart holds no items.
func (s *Store) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items) == 0
}

// Len returns the number of items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Contains reports whether an item with id is in the cart.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(id) >= 0
}

// Items returns a copy of the items in insertion order.
func (s *Store) Items() []models.CartLineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.CartLineItem, len(s.items))
	copy(out, s.items)
	return out
}

// Total returns the sum of the item prices.
func (s *Store) Total() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Snapshot returns items and total taken under one lock. Currency is that of
// the first item.
func (s *Store) Snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := models.Snapshot{
		Items: make([]models.CartLineItem, len(s.items)),
		Total: s.total,
	}
	copy(snap.Items, s.items)
	if len(s.items) > 0 {
		snap.Currency = s.items[0].Currency
	}
	return snap
}

// commit persists next and its total, then installs them in memory. Items are
// written before the total. If the total write fails the previous items are
// written back so the backend matches memory again; Load recomputes the total
// either way.
func (s *Store) commit(ctx context.Context, next []models.CartLineItem) error {
	total := sum(next)

	raw, err := encodeItems(next)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersist, err)
	}
	if err := s.kv.Set(ctx, s.itemsKey, raw); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := s.kv.Set(ctx, s.totalKey, encodeTotal(total)); err != nil {
		s.restoreItems(ctx)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	s.items = next
	s.total = total
	return nil
}

func (s *Store) restoreItems(ctx context.Context) {
	prev, err := encodeItems(s.items)
	if err == nil {
		err = s.kv.Set(ctx, s.itemsKey, prev)
	}
	if err != nil {
		s.logger.Error("cart backend left ahead of memory", zap.String("key", s.itemsKey), zap.Error(err))
	}
}

func (s *Store) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func sum(items []models.CartLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price)
	}
	return total
}

func validateItem(item models.CartLineItem) error {
	if err := validate.Struct(item); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	if err := CheckAmount(item.Price); err != nil {
		return fmt.Errorf("%w: price: %w", ErrInvalidItem, err)
	}
	return nil
}
