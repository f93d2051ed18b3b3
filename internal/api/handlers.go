package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"forex-autopilot/internal/engine"
	"forex-autopilot/internal/markethours"
	"forex-autopilot/internal/marketdata"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 500
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"market":      markethours.StatusString(now),
		"market_open": markethours.IsMarketOpen(now),
		"auto_trade":  s.eng.AutoStatus(),
		"time":        now.UTC(),
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req engine.ScanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Symbol = marketdata.NormalizeSymbol(req.Symbol)
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	res, err := s.eng.ScanSymbol(ctx, req)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ScanTimeout)
	defer cancel()
	opps, err := s.eng.ScanAll(ctx)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": opps,
		"count":         len(opps),
	})
}

func (s *Server) handleLivePrice(w http.ResponseWriter, r *http.Request) {
	symbol := marketdata.NormalizeSymbol(mux.Vars(r)["symbol"])
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	lp, err := s.eng.LivePrice(ctx, symbol)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lp)
}

func (s *Server) handleRunBot(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ScanTimeout)
	defer cancel()
	res, err := s.eng.RunCycle(ctx)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", engine.DefaultHistoryLimit, 1000)
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, s.eng.Trades(ctx, limit))
}

func (s *Server) handleCloseTrade(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["trade_id"]
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	t, err := s.eng.CloseTrade(ctx, id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"trade":  t,
		"pnl":    t.PnL,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Balance float64 `json:"balance"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Balance < 0 {
		writeError(w, http.StatusBadRequest, "balance must not be negative")
		return
	}
	sum := s.eng.Reset(req.Balance)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Account reset",
		"summary": sum,
	})
}

func (s *Server) handleAutoStart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.StartAuto(s.base))
}

func (s *Server) handleAutoStop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.StopAuto())
}

func (s *Server) handleAutoStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.AutoStatus())
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	limit := queryInt(r, "limit", defaultJournalLimit, maxJournalLimit)
	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": entries, "count": len(entries)})
}

func (s *Server) handleJournalSymbols(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	stats, err := s.journal.BySymbol(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbols": stats})
}

// decodeBody decodes a JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func queryInt(r *http.Request, key string, def, upper int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return min(n, upper)
}
