// Package config loads the engine configuration from defaults, an optional
// YAML file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"forex-autopilot/internal/marketdata"
	"forex-autopilot/internal/portfolio"
)

// Config holds all application configuration.
type Config struct {
	// Storage
	SnapshotPath  string `yaml:"snapshot_path"`
	JournalPath   string `yaml:"journal_path"`
	RedisAddr     string `yaml:"redis_addr"` // empty disables Redis
	RedisPassword string `yaml:"redis_password"`

	// Servers
	MetricsAddr string `yaml:"metrics_addr"`
	APIAddr     string `yaml:"api_addr"`

	InitialBalance float64 `yaml:"initial_balance"`

	// Scanner
	Symbols       []string `yaml:"symbols"`
	ScanWorkers   int      `yaml:"scan_workers"`
	ScanPeriod    string   `yaml:"scan_period"`
	ScanInterval  string   `yaml:"scan_interval"`
	MinConfidence float64  `yaml:"min_confidence"`
	MinScanScore  float64  `yaml:"min_scan_score"`

	// Auto-trade controller
	AutoTradeScore     float64       `yaml:"auto_trade_score"`
	AutoRiskFraction   float64       `yaml:"auto_risk_fraction"`
	ManualRiskFraction float64       `yaml:"manual_risk_fraction"`
	ScanEvery          time.Duration `yaml:"scan_every"`
	DeniedRetry        time.Duration `yaml:"denied_retry"`
	MonitorEvery       time.Duration `yaml:"monitor_every"`

	Risk portfolio.RiskLimits `yaml:"risk"`

	// Market data
	PriceTTL time.Duration `yaml:"price_ttl"`
	YahooRPS float64       `yaml:"yahoo_rps"`

	// Alerts
	TelegramBotToken string `yaml:"-"`
	TelegramChatID   int64  `yaml:"telegram_chat_id"`
	WebhookURL       string `yaml:"webhook_url"`

	// AdminTOTPSecret guards reset and manual close. Empty disables the guard.
	AdminTOTPSecret string `yaml:"-"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SnapshotPath: "data/paper_trades.json",
		JournalPath:  "data/journal.db",
		MetricsAddr:  ":9090",
		APIAddr:      ":8000",

		InitialBalance: portfolio.DefaultInitialBalance,

		Symbols:       append([]string(nil), marketdata.DefaultSymbols...),
		ScanWorkers:   5,
		ScanPeriod:    "1mo",
		ScanInterval:  "15m",
		MinConfidence: 0.65,
		MinScanScore:  60,

		AutoTradeScore:     45,
		AutoRiskFraction:   0.01,
		ManualRiskFraction: 0.02,
		ScanEvery:          5 * time.Minute,
		DeniedRetry:        time.Minute,
		MonitorEvery:       5 * time.Second,

		Risk: portfolio.DefaultRiskLimits(),

		PriceTTL: marketdata.DefaultPriceTTL,
		YahooRPS: 5,

		LogLevel: "info",
	}
}

// Load reads .env (if present), then CONFIG_FILE (if set), then the
// environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not read .env", "error", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path. Keys absent from the file keep
// their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("SNAPSHOT_PATH", &c.SnapshotPath)
	str("JOURNAL_PATH", &c.JournalPath)
	str("REDIS_ADDR", &c.RedisAddr)
	str("REDIS_PASSWORD", &c.RedisPassword)
	str("METRICS_ADDR", &c.MetricsAddr)
	str("API_ADDR", &c.APIAddr)
	num("INITIAL_BALANCE", &c.InitialBalance)

	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols = ParseSymbols(v)
	}
	integer("SCAN_WORKERS", &c.ScanWorkers)
	str("SCAN_PERIOD", &c.ScanPeriod)
	str("SCAN_INTERVAL", &c.ScanInterval)
	num("MIN_CONFIDENCE", &c.MinConfidence)
	num("MIN_SCAN_SCORE", &c.MinScanScore)

	num("AUTO_TRADE_SCORE", &c.AutoTradeScore)
	num("AUTO_RISK_FRACTION", &c.AutoRiskFraction)
	num("MANUAL_RISK_FRACTION", &c.ManualRiskFraction)
	dur("SCAN_EVERY", &c.ScanEvery)
	dur("DENIED_RETRY", &c.DeniedRetry)
	dur("MONITOR_EVERY", &c.MonitorEvery)

	num("MAX_DAILY_LOSS_PCT", &c.Risk.MaxDailyLossPct)
	integer("MAX_OPEN_TRADES", &c.Risk.MaxOpenTrades)
	dur("LOSS_COOLDOWN", &c.Risk.LossCooldown)
	num("MIN_WIN_RATE_PCT", &c.Risk.MinWinRatePct)
	integer("MIN_TRADES_FOR_WIN_RATE", &c.Risk.MinTradesForWinRate)

	dur("PRICE_TTL", &c.PriceTTL)
	num("YAHOO_RPS", &c.YahooRPS)

	str("TELEGRAM_BOT_TOKEN", &c.TelegramBotToken)
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err))
		} else {
			c.TelegramChatID = id
		}
	}
	str("WEBHOOK_URL", &c.WebhookURL)
	str("ADMIN_TOTP_SECRET", &c.AdminTOTPSecret)
	str("LOG_LEVEL", &c.LogLevel)

	return errors.Join(errs...)
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.InitialBalance <= 0 {
		errs = append(errs, errors.New("initial balance must be positive"))
	}
	if len(c.Symbols) == 0 {
		errs = append(errs, errors.New("symbol universe is empty"))
	}
	if c.ScanWorkers <= 0 {
		errs = append(errs, errors.New("scan workers must be positive"))
	}
	if _, err := marketdata.ParsePeriod(c.ScanPeriod); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := marketdata.ParseInterval(c.ScanInterval); err != nil {
		errs = append(errs, err)
	}
	for name, f := range map[string]float64{
		"auto risk fraction":   c.AutoRiskFraction,
		"manual risk fraction": c.ManualRiskFraction,
	} {
		if f <= 0 || f > 1 {
			errs = append(errs, fmt.Errorf("%s must be in (0, 1], got %v", name, f))
		}
	}
	if c.Risk.MaxOpenTrades <= 0 {
		errs = append(errs, errors.New("max open trades must be positive"))
	}
	if c.TelegramBotToken != "" && c.TelegramChatID == 0 {
		errs = append(errs, errors.New("TELEGRAM_CHAT_ID is required with TELEGRAM_BOT_TOKEN"))
	}
	return errors.Join(errs...)
}

// ParseSymbols splits a comma-separated list, normalizing and dropping
// blanks and duplicates.
func ParseSymbols(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range strings.Split(s, ",") {
		sym := marketdata.NormalizeSymbol(p)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}
