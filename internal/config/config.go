// Package config содержит логику чтения конфигурации сервисов магазина, склада и кошелька.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mmeshcher/checkout-saga/internal/resilience"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress       string `env:"RUN_ADDRESS"`
	DatabaseURI      string `env:"DATABASE_URI"`
	InventoryAddress string `env:"INVENTORY_ADDRESS"`
	WalletAddress    string `env:"WALLET_ADDRESS"`
	JWTSecret        string `env:"JWT_SECRET"`

	AppEnv       string   `env:"APP_ENV" envDefault:"production"`
	RedisAddr    string   `env:"REDIS_ADDR"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	RetryMax                uint64        `env:"RETRY_MAX" envDefault:"3"`
	RetryBaseDelay          time.Duration `env:"RETRY_BASE_DELAY" envDefault:"100ms"`
	RetryMaxDelay           time.Duration `env:"RETRY_MAX_DELAY" envDefault:"2s"`
	BreakerFailureThreshold int           `env:"BREAKER_FAILURE_THRESHOLD" envDefault:"5"`
	BreakerOpenTimeout      time.Duration `env:"BREAKER_OPEN_TIMEOUT" envDefault:"30s"`
	BreakerHalfOpenRequests int           `env:"BREAKER_HALF_OPEN_REQUESTS" envDefault:"1"`
	HTTPClientTimeout       time.Duration `env:"HTTP_CLIENT_TIMEOUT" envDefault:"5s"`

	RecoveryInterval time.Duration `env:"RECOVERY_INTERVAL" envDefault:"30s"`
	PendingTimeout   time.Duration `env:"PENDING_TIMEOUT" envDefault:"2m"`

	RateLimit float64 `env:"RATE_LIMIT" envDefault:"50"`
	RateBurst int     `env:"RATE_BURST" envDefault:"100"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse(defaultRunAddress string) (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envInventoryAddress := cfg.InventoryAddress
	envWalletAddress := cfg.WalletAddress
	envJWTSecret := cfg.JWTSecret

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.InventoryAddress, "i", "", "inventory service address")
	flag.StringVar(&cfg.WalletAddress, "w", "", "wallet service address")
	flag.StringVar(&cfg.JWTSecret, "s", "", "JWT signing secret")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envInventoryAddress != "" {
		cfg.InventoryAddress = envInventoryAddress
	}
	if envWalletAddress != "" {
		cfg.WalletAddress = envWalletAddress
	}
	if envJWTSecret != "" {
		cfg.JWTSecret = envJWTSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	cfg.InventoryAddress = normalizeAddress(cfg.InventoryAddress)
	cfg.WalletAddress = normalizeAddress(cfg.WalletAddress)

	return cfg, nil
}

// Development сообщает, запущен ли сервис в режиме разработки.
func (c *Config) Development() bool {
	return c.AppEnv == "development"
}

// ResiliencePolicy возвращает политику повторов и размыкателя для зависимости name.
func (c *Config) ResiliencePolicy(name string) resilience.Policy {
	p := resilience.DefaultPolicy(name)
	p.MaxRetries = c.RetryMax
	if c.RetryBaseDelay > 0 {
		p.BaseDelay = c.RetryBaseDelay
	}
	if c.RetryMaxDelay > 0 {
		p.MaxDelay = c.RetryMaxDelay
	}
	if c.BreakerFailureThreshold > 0 {
		p.FailureThreshold = c.BreakerFailureThreshold
	}
	if c.BreakerOpenTimeout > 0 {
		p.OpenTimeout = c.BreakerOpenTimeout
	}
	if c.BreakerHalfOpenRequests > 0 {
		p.HalfOpenMaxRequests = c.BreakerHalfOpenRequests
	}
	return p
}

func normalizeAddress(addr string) string {
	addr = strings.TrimRight(addr, "/")
	if addr == "" {
		return ""
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return addr
}
