// Package config loads all runtime settings from environment
// variables via envconfig. Nothing else in the tree reads the
// environment directly.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// --- Server ---
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	// --- Game ---
	HouseEdge     float64       `envconfig:"HOUSE_EDGE" default:"0.03"`
	MinBet        float64       `envconfig:"MIN_BET" default:"0.1"`
	MaxBet        float64       `envconfig:"MAX_BET" default:"100"`
	MaxMultiplier float64       `envconfig:"MAX_MULTIPLIER" default:"1000"`
	BettingTime   time.Duration `envconfig:"BETTING_TIME" default:"10s"`
	CrashDelay    time.Duration `envconfig:"CRASH_DELAY" default:"3s"`
	TickRate      time.Duration `envconfig:"TICK_RATE" default:"100ms"`

	// --- Wallet ---
	MinWithdraw      float64 `envconfig:"MIN_WITHDRAW" default:"1"`
	DepositWallet    string  `envconfig:"DEPOSIT_WALLET"`
	TonAPIURL        string  `envconfig:"TON_API_URL" default:"https://tonapi.io"`
	GiftDefaultPrice float64 `envconfig:"GIFT_DEFAULT_PRICE" default:"5.0"`
	// Comma separated item:price and collection:price overrides, e.g.
	// GIFT_ITEM_PRICES="EQitem1:25,EQitem2:12.5".
	GiftItemPrices       map[string]float64 `envconfig:"GIFT_ITEM_PRICES"`
	GiftCollectionPrices map[string]float64 `envconfig:"GIFT_COLLECTION_PRICES"`

	// --- Database ---
	// Empty means in-memory only; fine for development, not for prod.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// --- Auth ---
	JWTSecret         string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL          time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	AdminPasswordHash string        `envconfig:"ADMIN_PASSWORD_HASH"`

	// --- Rate limiting ---
	RateLimitPerSecond float64 `envconfig:"RATE_LIMIT_PER_SECOND" default:"10"`
	RateLimitBurst     int     `envconfig:"RATE_LIMIT_BURST" default:"20"`
}

func (c *Config) Validate() error {
	if c.HouseEdge < 0 || c.HouseEdge >= 1 {
		return fmt.Errorf("HOUSE_EDGE must be in [0,1), got %v", c.HouseEdge)
	}
	if c.MinBet <= 0 || c.MaxBet < c.MinBet {
		return fmt.Errorf("bad MIN_BET/MAX_BET: %v/%v", c.MinBet, c.MaxBet)
	}
	if c.MaxMultiplier <= 1 {
		return fmt.Errorf("MAX_MULTIPLIER must be > 1, got %v", c.MaxMultiplier)
	}
	if c.TickRate <= 0 {
		return fmt.Errorf("TICK_RATE must be > 0, got %v", c.TickRate)
	}
	if c.MinWithdraw <= 0 {
		return fmt.Errorf("MIN_WITHDRAW must be > 0, got %v", c.MinWithdraw)
	}
	if c.GiftDefaultPrice <= 0 {
		return fmt.Errorf("GIFT_DEFAULT_PRICE must be > 0, got %v", c.GiftDefaultPrice)
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
