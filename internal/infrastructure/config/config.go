package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	PriceSourceREST   = "rest"
	PriceSourceStream = "stream"
)

type Config struct {
	App struct {
		LogLevel string `toml:"log_level"`
	} `toml:"app"`

	Arbitrage struct {
		StartAmount      decimal.Decimal `toml:"start_amount"`       // 起始金额，锚定币种计价
		MinProfitPercent decimal.Decimal `toml:"min_profit_percent"` // 严格大于才上报
		FeeRate          decimal.Decimal `toml:"fee_rate"`           // 每腿 taker 费率，0 = 忽略
		Anchors          []string        `toml:"anchors"`            // 起始币种优先级
		Workers          int             `toml:"workers"`
	} `toml:"arbitrage"`

	Scan struct {
		IntervalSec     int  `toml:"interval_sec"`
		InitialDelaySec int  `toml:"initial_delay_sec"`
		PriceTimeoutSec int  `toml:"price_timeout_sec"`
		AutoStart       bool `toml:"auto_start"`
	} `toml:"scan"`

	Exchange struct {
		Bybit struct {
			RestURL         string `toml:"rest_url"`
			WsURL           string `toml:"ws_url"`
			APIKey          string `toml:"api_key"`
			APISecret       string `toml:"api_secret"`
			RecvWindowMs    int    `toml:"recv_window_ms"`
			PriceSource     string `toml:"price_source"` // rest | stream
			StreamMaxAgeSec int    `toml:"stream_max_age_sec"`
		} `toml:"bybit"`
	} `toml:"exchange"`

	Telegram struct {
		Token               string `toml:"token"`
		AdminChatID         int64  `toml:"admin_chat_id"`
		APIURL              string `toml:"api_url"`
		PollTimeoutSec      int    `toml:"poll_timeout_sec"`
		NotifyOpportunities bool   `toml:"notify_opportunities"`
	} `toml:"telegram"`

	Storage struct {
		Redis struct {
			Addr     string `toml:"addr"`
			Password string `toml:"password"`
			DB       int    `toml:"db"`
			Stream   string `toml:"stream"`
			Channel  string `toml:"channel"`
			MaxLen   int64  `toml:"max_len"`
		} `toml:"redis"`

		SQLite struct {
			Path string `toml:"path"`
		} `toml:"sqlite"`

		Postgres struct {
			DSN string `toml:"dsn"`
		} `toml:"postgres"`
	} `toml:"storage"`
}

// Load reads the TOML file at path (skipped when path is empty), loads .env
// if present, applies environment overrides and defaults, then validates.
func Load(path string) (*Config, error) {
	var cfg Config
	var md toml.MetaData
	if path != "" {
		var err error
		if md, err = toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	applyEnvOverrides(&cfg)

	applyDefaults(&cfg, md)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	setInt64(&cfg.Telegram.AdminChatID, "ADMIN_CHAT_ID")
	setStr(&cfg.Exchange.Bybit.APIKey, "BYBIT_API_KEY")
	setStr(&cfg.Exchange.Bybit.APISecret, "BYBIT_API_SECRET")
	setStr(&cfg.Storage.Redis.Addr, "TRIARB_REDIS_ADDR")
	setStr(&cfg.Storage.Redis.Password, "TRIARB_REDIS_PASSWORD")
	setStr(&cfg.Storage.Postgres.DSN, "TRIARB_POSTGRES_DSN")
	setStr(&cfg.Storage.SQLite.Path, "TRIARB_SQLITE_PATH")
	setStr(&cfg.App.LogLevel, "TRIARB_LOG_LEVEL")
}

func applyDefaults(cfg *Config, md toml.MetaData) {
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}

	if !cfg.Arbitrage.StartAmount.IsPositive() {
		cfg.Arbitrage.StartAmount = decimal.NewFromInt(100)
	}
	// 0 是合法阈值，只有未配置时才取默认
	if !md.IsDefined("arbitrage", "min_profit_percent") {
		cfg.Arbitrage.MinProfitPercent = decimal.RequireFromString("0.5")
	}
	if len(cfg.Arbitrage.Anchors) == 0 {
		cfg.Arbitrage.Anchors = []string{"USDT"}
	}
	if cfg.Arbitrage.Workers <= 0 {
		cfg.Arbitrage.Workers = 4
	}

	if cfg.Scan.IntervalSec <= 0 {
		cfg.Scan.IntervalSec = 5
	}
	if !md.IsDefined("scan", "initial_delay_sec") {
		cfg.Scan.InitialDelaySec = 1
	}
	if cfg.Scan.PriceTimeoutSec <= 0 {
		cfg.Scan.PriceTimeoutSec = 10
	}

	by := &cfg.Exchange.Bybit
	if by.RestURL == "" {
		by.RestURL = "https://api.bybit.com"
	}
	if by.WsURL == "" {
		by.WsURL = "wss://stream.bybit.com/v5/public/spot"
	}
	if by.RecvWindowMs <= 0 {
		by.RecvWindowMs = 5000
	}
	if by.PriceSource == "" {
		by.PriceSource = PriceSourceREST
	}
	if by.StreamMaxAgeSec <= 0 {
		by.StreamMaxAgeSec = 30
	}

	if cfg.Telegram.APIURL == "" {
		cfg.Telegram.APIURL = "https://api.telegram.org"
	}
	if cfg.Telegram.PollTimeoutSec <= 0 {
		cfg.Telegram.PollTimeoutSec = 30
	}
	if !md.IsDefined("telegram", "notify_opportunities") {
		cfg.Telegram.NotifyOpportunities = true
	}

	if cfg.Storage.Redis.Stream == "" {
		cfg.Storage.Redis.Stream = "triarb:opportunities"
	}
	if cfg.Storage.Redis.Channel == "" {
		cfg.Storage.Redis.Channel = "triarb:opportunities:live"
	}
	if cfg.Storage.Redis.MaxLen <= 0 {
		cfg.Storage.Redis.MaxLen = 10000
	}
}

func validate(cfg *Config) error {
	cfg.Arbitrage.Anchors = normalizeCodes(cfg.Arbitrage.Anchors)

	if cfg.Arbitrage.MinProfitPercent.IsNegative() {
		return errors.New("arbitrage.min_profit_percent must not be negative")
	}
	if cfg.Arbitrage.FeeRate.IsNegative() || cfg.Arbitrage.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.New("arbitrage.fee_rate must be in [0, 1)")
	}
	if cfg.Scan.InitialDelaySec < 0 {
		return errors.New("scan.initial_delay_sec must not be negative")
	}

	by := &cfg.Exchange.Bybit
	by.PriceSource = strings.ToLower(strings.TrimSpace(by.PriceSource))
	switch by.PriceSource {
	case PriceSourceREST, PriceSourceStream:
	default:
		return fmt.Errorf("exchange.bybit.price_source %q: want rest or stream", by.PriceSource)
	}
	if (by.APIKey == "") != (by.APISecret == "") {
		return errors.New("exchange.bybit api_key and api_secret must be set together")
	}

	if cfg.Telegram.Token != "" && cfg.Telegram.AdminChatID == 0 {
		return errors.New("telegram.admin_chat_id required when telegram is enabled")
	}
	return nil
}

func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Scan.IntervalSec) * time.Second
}

func (c *Config) InitialDelay() time.Duration {
	return time.Duration(c.Scan.InitialDelaySec) * time.Second
}

func (c *Config) PriceTimeout() time.Duration {
	return time.Duration(c.Scan.PriceTimeoutSec) * time.Second
}

func (c *Config) TelegramEnabled() bool { return c.Telegram.Token != "" }

func setStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt64(dst *int64, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func normalizeCodes(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
