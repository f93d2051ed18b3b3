// Command fxd runs the forex decision engine: the HTTP API, the auto-trade
// controller, the position monitor and the alert dispatcher.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"forex-autopilot/config"
	"forex-autopilot/internal/api"
	"forex-autopilot/internal/engine"
	"forex-autopilot/internal/events"
	"forex-autopilot/internal/execution"
	"forex-autopilot/internal/logger"
	"forex-autopilot/internal/marketdata"
	"forex-autopilot/internal/markethours"
	"forex-autopilot/internal/metrics"
	"forex-autopilot/internal/notification"
	"forex-autopilot/internal/portfolio"
	"forex-autopilot/internal/scanner"
	redisstore "forex-autopilot/internal/store/redis"
	sqlitestore "forex-autopilot/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger.Init("fxd", logger.ParseLevel(cfg.LogLevel))
	slog.Info("starting", "symbols", len(cfg.Symbols), "market", markethours.StatusString(time.Now()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Metrics & health ----
	met := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Redis (optional) ----
	var (
		rdb       *redisstore.Store
		shared    marketdata.SharedPrices
		publisher engine.Publisher
	)
	if cfg.RedisAddr != "" {
		health.SetRedisEnabled(true)
		rdb, err = redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			PriceTTL: cfg.PriceTTL,
		})
		if err != nil {
			slog.Warn("redis unavailable, running without shared cache", "addr", cfg.RedisAddr, "error", err)
			rdb = nil
		} else {
			health.SetRedisConnected(true)
			shared, publisher = rdb, rdb
			defer rdb.Close()
		}
	}

	// ---- Journal ----
	journal, err := sqlitestore.Open(cfg.JournalPath)
	if err != nil {
		slog.Error("journal open failed", "path", cfg.JournalPath, "error", err)
		os.Exit(1)
	}
	defer journal.Close()
	health.SetSQLiteOK(true)

	if rdb != nil {
		health.StartLivenessChecker(ctx, rdb.Client(), journal.DB(), 15*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, journal.DB(), 15*time.Second)
	}

	// ---- Market data ----
	yahoo := marketdata.NewYahoo(marketdata.YahooConfig{RPS: cfg.YahooRPS}, met)
	prices := marketdata.NewPriceCache(yahoo, shared, cfg.PriceTTL, met)

	// ---- Account ----
	ledger, err := portfolio.NewLedger(portfolio.Options{
		InitialBalance: cfg.InitialBalance,
		Store:          portfolio.NewFileStore(cfg.SnapshotPath),
		Prices:         prices,
		Metrics:        met,
	})
	if err != nil {
		slog.Error("ledger load failed", "path", cfg.SnapshotPath, "error", err)
		os.Exit(1)
	}
	gate := portfolio.NewRiskGate(cfg.Risk)

	// ---- Scanner & controller ----
	sc := scanner.New(scanner.Config{
		Symbols:       cfg.Symbols,
		Workers:       cfg.ScanWorkers,
		Period:        cfg.ScanPeriod,
		Interval:      cfg.ScanInterval,
		MinConfidence: cfg.MinConfidence,
		MinScore:      cfg.MinScanScore,
	}, yahoo, nil, met)
	ctrl := execution.NewController(execution.Config{
		TradeScore:   cfg.AutoTradeScore,
		RiskFraction: cfg.AutoRiskFraction,
		ScanEvery:    cfg.ScanEvery,
		DeniedRetry:  cfg.DeniedRetry,
	}, sc, ledger, gate, met)

	// ---- Alerts ----
	notifiers := notification.Multi{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			slog.Warn("telegram disabled", "error", err)
		} else {
			notifiers = append(notifiers, tg)
		}
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	alerts := notification.NewDispatcher(notifiers, 64)
	go alerts.Run(ctx)

	// ---- Service ----
	bus := events.New(256)
	svc := engine.New(engine.Options{
		Ledger:             ledger,
		Gate:               gate,
		Scanner:            sc,
		Controller:         ctrl,
		Prices:             prices,
		Events:             bus,
		Publisher:          publisher,
		Journal:            journal,
		Alerts:             alerts,
		Health:             health,
		ManualRiskFraction: cfg.ManualRiskFraction,
	})

	monitor := execution.NewMonitor(ledger, prices, cfg.MonitorEvery)
	go monitor.Run(ctx)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			health.SetMarketOpen(markethours.IsMarketOpen(time.Now()))
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	// ---- API ----
	hub := api.NewHub()
	go hub.Run(ctx, bus)
	srv := api.NewServer(ctx, api.Config{
		Addr:            cfg.APIAddr,
		AdminTOTPSecret: cfg.AdminTOTPSecret,
	}, svc, journal, hub)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("api server failed", "error", err)
			cancel()
		}
	}()

	// ---- Wait for shutdown signal ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api shutdown", "error", err)
	}
	if ctrl.Running() {
		svc.StopAuto()
	}
	cancel()
	svc.Wait()
	bus.Close()
	metricsSrv.Stop(shutdownCtx)

	slog.Info("shutdown complete", "balance", ledger.Balance(), "active_trades", ledger.ActiveCount())
}
