package main

// GET    /cart            - List the session's cart
// POST   /cart/items      - Add a product to the cart
// DELETE /cart/items/{id} - Remove a product from the cart
// DELETE /cart            - Empty the cart
// POST   /checkout        - Submit the cart to the order API
// GET    /healthz         - Liveness
//
// Every cart route needs an X-Cart-Session header holding a UUID.

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront-cart/cart"
	"storefront-cart/checkout"
	"storefront-cart/config"
	"storefront-cart/handler"
	"storefront-cart/logger"
	"storefront-cart/service"
	"storefront-cart/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	// Prices go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	// --- Storage ---
	kv, err := openStore(cfg)
	if err != nil {
		lg.Fatal("storage unavailable", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer kv.Close()
	lg.Info("storage ready", zap.String("driver", cfg.Storage.Driver))

	// --- Cart + checkout ---
	carts := cart.NewRegistry(kv, lg.Named("cart"), cart.WithMaxSessions(cfg.Cart.MaxSessions))

	policy := checkout.ClearNever
	if cfg.Checkout.ClearOnSuccess {
		policy = checkout.ClearOnSuccess
	}
	co := checkout.New(
		checkout.NewHTTPOrderClient(cfg.Orders.BaseURL, cfg.Orders.Timeout),
		checkout.WithClearPolicy(policy),
		checkout.WithLogger(lg.Named("checkout")),
	)

	// --- Service ---
	var svc service.ServiceInterface = service.NewService(carts, co)

	// --- Router ---
	r := mux.NewRouter()
	handler.NewHandler(svc, lg.Named("http")).RegisterRoutes(r)

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		lg.Info("server running",
			zap.String("addr", srv.Addr),
			zap.String("orders_api", cfg.Orders.BaseURL),
			zap.Stringer("clear_policy", policy),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openStore(cfg *config.Config) (store.KV, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return store.NewMemory(), nil
	case config.DriverRedis:
		rs, err := store.NewRedis(store.RedisConfig{
			Host:      cfg.Redis.Host,
			Port:      cfg.Redis.Port,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		return rs, nil
	case config.DriverPostgres, config.DriverSQLite:
		var (
			sqlStore *store.SQLStore
			err      error
		)
		if cfg.Storage.Driver == config.DriverPostgres {
			sqlStore, err = store.OpenPostgres(cfg.Database.DSN)
		} else {
			sqlStore, err = store.OpenSQLite(cfg.SQLite.Path)
		}
		if err != nil {
			return nil, err
		}
		return sqlStore, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
