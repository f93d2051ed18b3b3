// Package api is the HTTP boundary of the decision engine: JSON endpoints
// routed with gorilla/mux plus a WebSocket stream of trade events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"forex-autopilot/internal/engine"
	"forex-autopilot/internal/execution"
	"forex-autopilot/internal/logger"
	"forex-autopilot/internal/model"
	"forex-autopilot/internal/portfolio"
	"forex-autopilot/internal/scanner"
	"forex-autopilot/internal/store/sqlite"
)

// Engine is the set of operations exposed over HTTP. *engine.Service
// implements it.
type Engine interface {
	ScanSymbol(ctx context.Context, req engine.ScanRequest) (engine.ScanResult, error)
	ScanAll(ctx context.Context) ([]scanner.Opportunity, error)
	RunCycle(ctx context.Context) (engine.RunResult, error)
	Trades(ctx context.Context, historyLimit int) engine.TradesView
	CloseTrade(ctx context.Context, id string) (portfolio.Trade, error)
	Reset(balance float64) portfolio.Summary
	StartAuto(ctx context.Context) execution.StartResult
	StopAuto() execution.StopResult
	AutoStatus() execution.Status
	LivePrice(ctx context.Context, symbol string) (engine.LivePrice, error)
}

// Journal is the read side of the closed-trade journal.
type Journal interface {
	Recent(ctx context.Context, limit int) ([]sqlite.Entry, error)
	BySymbol(ctx context.Context) ([]sqlite.SymbolStats, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr string
	// AdminTOTPSecret enables the one-time-code guard on reset and close.
	AdminTOTPSecret string
	RequestTimeout  time.Duration
	// ScanTimeout bounds the full-universe scan endpoints.
	ScanTimeout time.Duration
}

// Server serves the engine API.
type Server struct {
	cfg     Config
	eng     Engine
	journal Journal
	hub     *Hub
	router  *mux.Router
	srv     *http.Server

	// base outlives requests; the auto-trade loop is started under it.
	base context.Context
	now  func() time.Time
}

// NewServer builds the router. journal and hub may be nil.
func NewServer(base context.Context, cfg Config, eng Engine, journal Journal, hub *Hub) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = 2 * time.Minute
	}
	s := &Server{
		cfg:     cfg,
		eng:     eng,
		journal: journal,
		hub:     hub,
		router:  mux.NewRouter(),
		base:    base,
		now:     time.Now,
	}
	s.routes()
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestID)
	s.router.Use(s.requestLogging)
	s.router.Use(cors)

	if s.hub != nil {
		s.router.HandleFunc("/ws", s.hub.HandleWS).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(jsonContentType)

	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/scan", s.handleScan).Methods(http.MethodPost)
	api.HandleFunc("/opportunities", s.handleOpportunities).Methods(http.MethodGet)
	api.HandleFunc("/live_price/{symbol}", s.handleLivePrice).Methods(http.MethodGet)
	api.HandleFunc("/run_bot", s.handleRunBot).Methods(http.MethodPost)
	api.HandleFunc("/trades", s.handleTrades).Methods(http.MethodGet)
	api.Handle("/close_trade/{trade_id}", s.adminOnly(http.HandlerFunc(s.handleCloseTrade))).Methods(http.MethodPost)
	api.Handle("/reset", s.adminOnly(http.HandlerFunc(s.handleReset))).Methods(http.MethodPost)
	api.HandleFunc("/auto-trade/start", s.handleAutoStart).Methods(http.MethodPost)
	api.HandleFunc("/auto-trade/stop", s.handleAutoStop).Methods(http.MethodPost)
	api.HandleFunc("/auto-trade/status", s.handleAutoStatus).Methods(http.MethodGet)
	api.HandleFunc("/journal", s.handleJournal).Methods(http.MethodGet)
	api.HandleFunc("/journal/symbols", s.handleJournalSymbols).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks until the server stops. http.ErrServerClosed is
// not reported.
func (s *Server) ListenAndServe() error {
	slog.Info("api server listening", "addr", s.cfg.Addr, "admin_guard", s.cfg.AdminTOTPSecret != "")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()[:8]
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logger.WithTraceID(r.Context(), "http-"+id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			// hijacked connections cannot be wrapped
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		args := append([]any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		}, logger.LogWithTrace(r.Context())...)
		slog.Debug("http request", args...)
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+totpHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeEngineError maps engine errors to status codes. Unexpected errors
// are logged and reported without internals.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrTradeNotFound):
		writeError(w, http.StatusNotFound, "Trade not found")
	case errors.Is(err, model.ErrDataUnavailable):
		writeError(w, http.StatusNotFound, "No data found for symbol")
	case errors.Is(err, model.ErrPriceUnavailable):
		writeError(w, http.StatusNotFound, "Price not available")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "Request timed out")
	default:
		args := append([]any{"path", r.URL.Path, "error", err}, logger.LogWithTrace(r.Context())...)
		slog.Error("request failed", args...)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
