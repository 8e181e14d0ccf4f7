package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HouseEdge != 0.03 {
		t.Errorf("house edge %v, want 0.03", cfg.HouseEdge)
	}
	if cfg.GiftDefaultPrice != 5.0 {
		t.Errorf("gift default price %v, want 5.0", cfg.GiftDefaultPrice)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("listen addr %q, want :8080", cfg.ListenAddr)
	}
}

func TestLoadGiftPriceOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("GIFT_ITEM_PRICES", "EQitem1:25,EQitem2:12.5")
	t.Setenv("GIFT_COLLECTION_PRICES", "EQcoll1:8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.GiftItemPrices["EQitem1"] != 25 || cfg.GiftItemPrices["EQitem2"] != 12.5 {
		t.Errorf("item prices %v, want EQitem1:25 EQitem2:12.5", cfg.GiftItemPrices)
	}
	if cfg.GiftCollectionPrices["EQcoll1"] != 8 {
		t.Errorf("collection prices %v, want EQcoll1:8", cfg.GiftCollectionPrices)
	}
}

func TestValidateRejectsBadRanges(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"house edge out of range", func(c *Config) { c.HouseEdge = 1.5 }},
		{"max bet below min bet", func(c *Config) { c.MinBet = 5; c.MaxBet = 1 }},
		{"max multiplier too low", func(c *Config) { c.MaxMultiplier = 1 }},
		{"zero tick rate", func(c *Config) { c.TickRate = 0 }},
		{"zero min withdraw", func(c *Config) { c.MinWithdraw = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "test-secret")
			cfg, err := Load()
			if err != nil {
				t.Fatalf("load failed: %v", err)
			}
			tt.mut(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("bad config validated")
			}
		})
	}
}
