package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Database DatabaseConfig
	SQLite   SQLiteConfig
	Orders   OrdersConfig
	Checkout CheckoutConfig
	Cart     CartConfig
	Log      LogConfig
	HTTP     HTTPConfig
}

type AppConfig struct {
	Name string
	Env  string
	Port string
}

// StorageConfig picks the key-value backend carts persist to.
type StorageConfig struct {
	Driver string // memory, redis, postgres, sqlite
}

type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

type DatabaseConfig struct {
	DSN string
}

type SQLiteConfig struct {
	Path string
}

// OrdersConfig points at the remote order API.
type OrdersConfig struct {
	BaseURL string
	Timeout time.Duration
}

type CheckoutConfig struct {
	ClearOnSuccess bool
}

// CartConfig bounds the carts kept in memory; evicted carts reload from storage.
type CartConfig struct {
	MaxSessions int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Load loads configuration from config.toml and environment variables.
// Environment variables use the CART_ prefix, e.g. CART_STORAGE_DRIVER.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("CART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(v.GetString("storage.driver")),
		},
		Redis: RedisConfig{
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Database: DatabaseConfig{
			DSN: v.GetString("database.dsn"),
		},
		SQLite: SQLiteConfig{
			Path: v.GetString("sqlite.path"),
		},
		Orders: OrdersConfig{
			BaseURL: v.GetString("orders.base_url"),
			Timeout: v.GetDuration("orders.timeout"),
		},
		Checkout: CheckoutConfig{
			ClearOnSuccess: v.GetBool("checkout.clear_on_success"),
		},
		Cart: CartConfig{
			MaxSessions: v.GetInt("cart.max_sessions"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "storefront-cart"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8082"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverMemory
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "cart.db"
	}
	if cfg.Orders.BaseURL == "" {
		cfg.Orders.BaseURL = "http://localhost:8081"
	}
	if cfg.Orders.Timeout == 0 {
		cfg.Orders.Timeout = 10 * time.Second
	}
	if cfg.Cart.MaxSessions == 0 {
		cfg.Cart.MaxSessions = 10000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		if cfg.IsProduction() {
			cfg.Log.Format = "json"
		} else {
			cfg.Log.Format = "console"
		}
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverRedis, DriverSQLite:
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the %s storage driver", DriverPostgres)
		}
	default:
		return fmt.Errorf("unknown storage driver %q (memory, redis, postgres, sqlite)", c.Storage.Driver)
	}

	u, err := url.Parse(c.Orders.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("orders.base_url must be an absolute URL, got %q", c.Orders.BaseURL)
	}
	if c.Cart.MaxSessions < 0 {
		return fmt.Errorf("cart.max_sessions must be > 0")
	}
	if c.Orders.Timeout < 0 {
		return fmt.Errorf("orders.timeout must be >= 0")
	}
	return nil
}

// IsProduction reports whether the app runs in production
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// Addr returns the listen address for the HTTP server
func (c *Config) Addr() string {
	return ":" + c.App.Port
}
