package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Symbols, 15)
	assert.Equal(t, 45.0, cfg.AutoTradeScore)
	assert.Equal(t, 0.02, cfg.ManualRiskFraction)
	assert.Equal(t, 15*time.Minute, cfg.Risk.LossCooldown)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("INITIAL_BALANCE", "25000")
	t.Setenv("SYMBOLS", "eurusd, GBPUSD=X,,EURUSD")
	t.Setenv("SCAN_EVERY", "90s")
	t.Setenv("MAX_OPEN_TRADES", "5")
	t.Setenv("LOSS_COOLDOWN", "30m")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("TELEGRAM_CHAT_ID", "-100123")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25000.0, cfg.InitialBalance)
	assert.Equal(t, []string{"EURUSD", "GBPUSD"}, cfg.Symbols)
	assert.Equal(t, 90*time.Second, cfg.ScanEvery)
	assert.Equal(t, 5, cfg.Risk.MaxOpenTrades)
	assert.Equal(t, 30*time.Minute, cfg.Risk.LossCooldown)
	assert.Equal(t, int64(-100123), cfg.TelegramChatID)
}

func TestLoad_BadValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SCAN_WORKERS", "many")
	t.Setenv("SCAN_EVERY", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorContains(t, err, "SCAN_WORKERS")
	assert.ErrorContains(t, err, "SCAN_EVERY")
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
symbols: [EURUSD, USDJPY]
scan_interval: 1h
auto_trade_score: 55
risk:
  max_daily_loss_pct: 2.5
  loss_cooldown: 10m
`), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("AUTO_TRADE_SCORE", "50")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"EURUSD", "USDJPY"}, cfg.Symbols)
	assert.Equal(t, "1h", cfg.ScanInterval)
	assert.Equal(t, 50.0, cfg.AutoTradeScore)
	assert.Equal(t, 2.5, cfg.Risk.MaxDailyLossPct)
	assert.Equal(t, 10*time.Minute, cfg.Risk.LossCooldown)
	// untouched keys keep defaults
	assert.Equal(t, 3, cfg.Risk.MaxOpenTrades)
	assert.Equal(t, "1mo", cfg.ScanPeriod)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("API_ADDR=:18000\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("API_ADDR") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":18000", cfg.APIAddr)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.AutoRiskFraction = 1.5
	cfg.ScanInterval = "7m"
	cfg.Symbols = nil
	cfg.TelegramBotToken = "tok"

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "auto risk fraction")
	assert.ErrorContains(t, err, "7m")
	assert.ErrorContains(t, err, "symbol universe")
	assert.ErrorContains(t, err, "TELEGRAM_CHAT_ID")
}

func TestParseSymbols(t *testing.T) {
	assert.Equal(t, []string{"EURUSD", "USDJPY"}, ParseSymbols(" eurusd ,USDJPY=X, eurusd,"))
	assert.Empty(t, ParseSymbols(" , "))
}
