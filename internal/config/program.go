package config

import "time"

// ProgramConfig describes the membership program's price catalog.
type ProgramConfig struct {
	// SettlementCurrency is the only currency revenue is reported in (lower case ISO code).
	SettlementCurrency string   `yaml:"settlement_currency" validate:"required,len=3"`
	AnnualPriceIDs     []string `yaml:"annual_price_ids" validate:"required,min=1,dive,required"`
	TrialPriceIDs      []string `yaml:"trial_price_ids" validate:"dive,required"`
}

func (c *ProgramConfig) applyDefaults() {
	if c.SettlementCurrency == "" {
		c.SettlementCurrency = "usd"
	}
}

// MetricsConfig tunes the aggregation pass and its cache.
type MetricsConfig struct {
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	InvoiceCap      int           `yaml:"invoice_cap" validate:"gte=0"`
	PageSize        int           `yaml:"page_size" validate:"gte=0,lte=100"`
	MaxPages        int           `yaml:"max_pages" validate:"gte=0"`
	RecentWindow    time.Duration `yaml:"recent_window"`
	ChurnWindow     time.Duration `yaml:"churn_window"`
	LookaheadWindow time.Duration `yaml:"lookahead_window"`
}

func (c *MetricsConfig) applyDefaults() {
	if c.CacheTTL == 0 {
		c.CacheTTL = 10 * time.Minute
	}
	if c.InvoiceCap == 0 {
		c.InvoiceCap = 5000
	}
	if c.PageSize == 0 {
		c.PageSize = 100
	}
	if c.MaxPages == 0 {
		c.MaxPages = 200
	}
	if c.RecentWindow == 0 {
		c.RecentWindow = 30 * 24 * time.Hour
	}
	if c.ChurnWindow == 0 {
		c.ChurnWindow = 90 * 24 * time.Hour
	}
	if c.LookaheadWindow == 0 {
		c.LookaheadWindow = 30 * 24 * time.Hour
	}
}
