package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"storefront-cart/store"
)

var (
	// ErrNoSession is returned when a cart is requested without a session id.
	ErrNoSession = errors.New("session id required")
	// ErrInvalidSession is returned for a session id that is not a UUID.
	ErrInvalidSession = errors.New("session id must be a UUID")
)

// DefaultMaxSessions is how many carts a Registry keeps in memory.
const DefaultMaxSessions = 10000

// Registry hands out one Store per session, all sharing a single backend.
// Each session's keys are namespaced by SessionKeys.
//
// At most maxSessions carts are held; the least recently used one is dropped
// first. Every mutation is already persisted, so a dropped cart is simply
// reloaded by the next Get.
type Registry struct {
	kv          store.KV
	logger      *zap.Logger
	maxSessions int

	carts *lru.Cache[string, *Store]
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMaxSessions bounds the number of carts kept in memory. Values <= 0
// select DefaultMaxSessions.
func WithMaxSessions(n int) RegistryOption {
	return func(r *Registry) { r.maxSessions = n }
}

func NewRegistry(kv store.KV, logger *zap.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{kv: kv, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxSessions <= 0 {
		r.maxSessions = DefaultMaxSessions
	}

	// only fails for a non-positive size
	r.carts, _ = lru.NewWithEvict(r.maxSessions, func(session string, _ *Store) {
		r.logger.Debug("cart evicted", zap.String("session", session))
	})
	return r
}

// SessionKeys returns the item and total keys for a session.
func SessionKeys(session string) (itemsKey, totalKey string) {
	return fmt.Sprintf("cart:%s:items", session), fmt.Sprintf("cart:%s:total", session)
}

// Get returns the session's cart, loading it from the backend on first use.
// The session id must be a UUID; any accepted spelling of the same UUID maps
// to the same cart.
func (r *Registry) Get(ctx context.Context, session string) (*Store, error) {
	key, err := canonicalSession(session)
	if err != nil {
		return nil, err
	}

	// fast path
	if s, ok := r.carts.Get(key); ok {
		return s, nil
	}

	itemsKey, totalKey := SessionKeys(key)
	s := Load(ctx, r.kv,
		WithKeys(itemsKey, totalKey),
		WithLogger(r.logger.With(zap.String("session", key))),
	)

	// another goroutine may have loaded the same session meanwhile
	if prev, ok, _ := r.carts.PeekOrAdd(key, s); ok {
		return prev, nil
	}
	return s, nil
}

// Forget drops the in-memory cart for a session. The persisted copy is kept
// and is reloaded by the next Get.
func (r *Registry) Forget(session string) {
	if key, err := canonicalSession(session); err == nil {
		r.carts.Remove(key)
	}
}

// Len returns the number of carts held in memory.
func (r *Registry) Len() int { return r.carts.Len() }

func canonicalSession(session string) (string, error) {
	if session == "" {
		return "", ErrNoSession
	}
	id, err := uuid.Parse(session)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	return id.String(), nil
}
