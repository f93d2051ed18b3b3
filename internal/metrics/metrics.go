package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the FX engine.
// All recording helpers are safe on a nil *Metrics.
type Metrics struct {
	// Scanner
	ScansTotal      prometheus.Counter
	ScanDuration    prometheus.Histogram
	SymbolsRejected *prometheus.CounterVec // labels: reason
	Opportunities   prometheus.Counter
	ScanBestScore   prometheus.Gauge

	// Ledger
	TradesOpened       prometheus.Counter
	TradesClosed       *prometheus.CounterVec // labels: status
	Balance            prometheus.Gauge
	OpenTrades         prometheus.Gauge
	ConversionFallback *prometheus.CounterVec // labels: method

	// Risk gate + controller
	GateDenials      *prometheus.CounterVec // labels: rule
	ControllerCycles *prometheus.CounterVec // labels: outcome
	ControllerPanics prometheus.Counter

	// Market data
	PriceCacheHits   *prometheus.CounterVec // labels: tier=local|shared
	PriceCacheMisses prometheus.Counter
	ProviderErrors   *prometheus.CounterVec // labels: call
	ProviderBreaker  prometheus.Gauge       // 0=closed, 1=open, 2=half-open
}

// NewMetrics registers all metrics on the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fx_scans_total",
			Help: "Total market scans (single symbol or full universe)",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fx_scan_duration_seconds",
			Help:    "Wall time of a full universe scan",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		SymbolsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fx_symbols_rejected_total",
			Help: "Symbols dropped during a scan (by reason)",
		}, []string{"reason"}),
		Opportunities: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fx_opportunities_total",
			Help: "Opportunities that passed every scan filter",
		}),
		ScanBestScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fx_scan_best_score",
			Help: "Score of the best opportunity in the last universe scan",
		}),

		TradesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fx_trades_opened_total",
			Help: "Simulated trades opened",
		}),
		TradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fx_trades_closed_total",
			Help: "Simulated trades closed (by terminal status)",
		}, []string{"status"}),
		Balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fx_account_balance",
			Help: "Realized account balance",
		}),
		OpenTrades: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fx_open_trades",
			Help: "Currently active trades",
		}),
		ConversionFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fx_pnl_conversion_total",
			Help: "PnL currency conversions on cross pairs (by method)",
		}, []string{"method"}),

		GateDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fx_gate_denials_total",
			Help: "Risk gate denials (by rule)",
		}, []string{"rule"}),
		ControllerCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fx_controller_cycles_total",
			Help: "Auto-trade controller cycles (by outcome)",
		}, []string{"outcome"}),
		ControllerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fx_controller_panics_total",
			Help: "Panics recovered inside controller or monitor loops",
		}),

		PriceCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fx_price_cache_hits_total",
			Help: "Live price cache hits (by tier)",
		}, []string{"tier"}),
		PriceCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fx_price_cache_misses_total",
			Help: "Live price lookups that reached the provider",
		}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fx_provider_errors_total",
			Help: "Market data provider errors (by call)",
		}, []string{"call"}),
		ProviderBreaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fx_provider_circuit_breaker_state",
			Help: "Market data circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
	}

	reg.MustRegister(
		m.ScansTotal,
		m.ScanDuration,
		m.SymbolsRejected,
		m.Opportunities,
		m.ScanBestScore,
		m.TradesOpened,
		m.TradesClosed,
		m.Balance,
		m.OpenTrades,
		m.ConversionFallback,
		m.GateDenials,
		m.ControllerCycles,
		m.ControllerPanics,
		m.PriceCacheHits,
		m.PriceCacheMisses,
		m.ProviderErrors,
		m.ProviderBreaker,
	)

	return m
}

// ObserveScan records a completed universe scan.
func (m *Metrics) ObserveScan(d time.Duration, found int, best float64) {
	if m == nil {
		return
	}
	m.ScansTotal.Inc()
	m.ScanDuration.Observe(d.Seconds())
	m.Opportunities.Add(float64(found))
	m.ScanBestScore.Set(best)
}

// Rejected counts a symbol dropped by a scan filter.
func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.SymbolsRejected.WithLabelValues(reason).Inc()
}

// TradeOpened records an opened trade and the resulting active count.
func (m *Metrics) TradeOpened(active int) {
	if m == nil {
		return
	}
	m.TradesOpened.Inc()
	m.OpenTrades.Set(float64(active))
}

// TradeClosed records a closed trade with the new balance and active count.
func (m *Metrics) TradeClosed(status string, balance float64, active int) {
	if m == nil {
		return
	}
	m.TradesClosed.WithLabelValues(status).Inc()
	m.Balance.Set(balance)
	m.OpenTrades.Set(float64(active))
}

// SetAccount sets the balance and active gauges after a load or reset.
func (m *Metrics) SetAccount(balance float64, active int) {
	if m == nil {
		return
	}
	m.Balance.Set(balance)
	m.OpenTrades.Set(float64(active))
}

// Conversion counts a cross-pair PnL conversion by method.
func (m *Metrics) Conversion(method string) {
	if m == nil {
		return
	}
	m.ConversionFallback.WithLabelValues(method).Inc()
}

// GateDenied counts a risk gate denial.
func (m *Metrics) GateDenied(rule string) {
	if m == nil {
		return
	}
	m.GateDenials.WithLabelValues(rule).Inc()
}

// Cycle counts a controller cycle outcome.
func (m *Metrics) Cycle(outcome string) {
	if m == nil {
		return
	}
	m.ControllerCycles.WithLabelValues(outcome).Inc()
}

// Panic counts a recovered loop panic.
func (m *Metrics) Panic() {
	if m == nil {
		return
	}
	m.ControllerPanics.Inc()
}

// CacheHit counts a price cache hit on tier.
func (m *Metrics) CacheHit(tier string) {
	if m == nil {
		return
	}
	m.PriceCacheHits.WithLabelValues(tier).Inc()
}

// CacheMiss counts a price lookup that went to the provider.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.PriceCacheMisses.Inc()
}

// ProviderError counts a failed provider call.
func (m *Metrics) ProviderError(call string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(call).Inc()
}

// SetBreakerState records the provider circuit breaker state.
func (m *Metrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.ProviderBreaker.Set(float64(state))
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	ProviderOK        bool      `json:"provider_ok"`
	LastScanTime      time.Time `json:"last_scan_time"`
	RedisEnabled      bool      `json:"redis_enabled"`
	RedisConnected    bool      `json:"redis_connected"`
	SQLiteOK          bool      `json:"sqlite_ok"`
	ControllerRunning bool      `json:"controller_running"`
	MarketOpen        bool      `json:"market_open"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		ProviderOK: true,
		StartedAt:  time.Now(),
	}
}

func (h *HealthStatus) SetProviderOK(v bool) {
	h.mu.Lock()
	h.ProviderOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastScanTime(t time.Time) {
	h.mu.Lock()
	h.LastScanTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetControllerRunning(v bool) {
	h.mu.Lock()
	h.ControllerRunning = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetMarketOpen(v bool) {
	h.mu.Lock()
	h.MarketOpen = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Redis is optional: only a configured-but-down Redis degrades health.
	redisOK := !h.RedisEnabled || h.RedisConnected

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.ProviderOK || !redisOK || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.ProviderOK && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	scanAge := ""
	if !h.LastScanTime.IsZero() {
		scanAge = time.Since(h.LastScanTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status            string  `json:"status"`
		Uptime            string  `json:"uptime"`
		ProviderOK        bool    `json:"provider_ok"`
		LastScanTime      string  `json:"last_scan_time"`
		ScanAge           string  `json:"scan_age"`
		RedisEnabled      bool    `json:"redis_enabled"`
		RedisConnected    bool    `json:"redis_connected"`
		RedisLatencyMs    float64 `json:"redis_latency_ms"`
		SQLiteOK          bool    `json:"sqlite_ok"`
		SQLiteLatencyMs   float64 `json:"sqlite_latency_ms"`
		ControllerRunning bool    `json:"controller_running"`
		MarketOpen        bool    `json:"market_open"`
		LastCheckAt       string  `json:"last_check_at"`
	}{
		Status:            overallStatus,
		Uptime:            time.Since(h.StartedAt).Round(time.Second).String(),
		ProviderOK:        h.ProviderOK,
		LastScanTime:      h.LastScanTime.Format(time.RFC3339),
		ScanAge:           scanAge,
		RedisEnabled:      h.RedisEnabled,
		RedisConnected:    h.RedisConnected,
		RedisLatencyMs:    h.RedisLatencyMs,
		SQLiteOK:          h.SQLiteOK,
		SQLiteLatencyMs:   h.SQLiteLatencyMs,
		ControllerRunning: h.ControllerRunning,
		MarketOpen:        h.MarketOpen,
		LastCheckAt:       h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
