// Package scanner analyzes a universe of FX pairs concurrently and ranks the
// tradeable opportunities.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"forex-autopilot/internal/classifier"
	"forex-autopilot/internal/council"
	"forex-autopilot/internal/indicator"
	"forex-autopilot/internal/logger"
	"forex-autopilot/internal/marketdata"
	"forex-autopilot/internal/metrics"
	"forex-autopilot/internal/model"
	"forex-autopilot/internal/tradecalc"
)

const (
	// MinCandles is the shortest history a symbol is analyzed with.
	MinCandles = 50

	chartCandles = 100
	fetchTimeout = 30 * time.Second
)

// Rejection reasons, also used as metric labels.
const (
	RejectFetch         = "fetch_error"
	RejectNoData        = "no_data"
	RejectClassifier    = "classifier"
	RejectLowConfidence = "low_confidence"
	RejectLowScore      = "low_score"
)

// Config controls what is scanned and how strictly.
type Config struct {
	Symbols       []string
	Workers       int
	Period        string
	Interval      string
	MinConfidence float64
	MinScore      float64
}

// DefaultConfig scans the 15 default pairs on one month of 15m bars.
func DefaultConfig() Config {
	return Config{
		Symbols:       marketdata.DefaultSymbols,
		Workers:       5,
		Period:        "1mo",
		Interval:      "15m",
		MinConfidence: 0.65,
		MinScore:      60,
	}
}

// ChartCandle is a bar in chart form. Time is unix seconds.
type ChartCandle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Indicators is the latest bar's indicator snapshot.
type Indicators struct {
	RSI  float64 `json:"rsi"`
	MACD float64 `json:"macd"`
	ATR  float64 `json:"atr"`
}

// Opportunity is a symbol that passed every filter.
type Opportunity struct {
	Symbol        string                    `json:"symbol"`
	Score         float64                   `json:"score"`
	Direction     model.Direction           `json:"-"`
	Prediction    string                    `json:"prediction"`
	Confidence    float64                   `json:"confidence"`
	ModelAccuracy float64                   `json:"model_accuracy"`
	CurrentPrice  float64                   `json:"current_price"`
	Levels        tradecalc.Levels          `json:"trade_levels"`
	Next          tradecalc.PredictedCandle `json:"next_candle"`
	Council       council.Verdict           `json:"council"`
	FuturePath    []classifier.PathPoint    `json:"future_path"`
	Candles       []ChartCandle             `json:"chart_data"`
	Patterns      model.Patterns            `json:"patterns"`
	Indicators    Indicators                `json:"indicators"`
}

// Rejection explains why an analyzed symbol is not an opportunity.
type Rejection struct {
	Reason string  `json:"reason"`
	Value  float64 `json:"value"`
}

// Analysis is the outcome of analyzing one symbol. Exactly one of
// Opportunity and Rejection is set.
type Analysis struct {
	Symbol      string
	Rows        []model.EnrichedRow
	Opportunity *Opportunity
	Rejection   *Rejection
}

// Scanner runs the per-symbol pipeline.
type Scanner struct {
	cfg        Config
	source     model.CandleSource
	classifier model.ClassifierFactory
	council    *council.Council
	met        *metrics.Metrics
	now        func() time.Time
}

// New creates a scanner. Zero config fields take their defaults.
func New(cfg Config, source model.CandleSource, newClassifier model.ClassifierFactory, m *metrics.Metrics) *Scanner {
	def := DefaultConfig()
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = def.Symbols
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Period == "" {
		cfg.Period = def.Period
	}
	if cfg.Interval == "" {
		cfg.Interval = def.Interval
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = def.MinScore
	}
	if newClassifier == nil {
		newClassifier = classifier.NewLogistic
	}
	return &Scanner{
		cfg:        cfg,
		source:     source,
		classifier: newClassifier,
		council:    council.New(),
		met:        m,
		now:        time.Now,
	}
}

// Config returns the effective configuration.
func (s *Scanner) Config() Config { return s.cfg }

// Analyze runs the full pipeline on one symbol with the configured period
// and interval.
func (s *Scanner) Analyze(ctx context.Context, symbol string) (Analysis, error) {
	return s.AnalyzeWith(ctx, symbol, s.cfg.Period, s.cfg.Interval)
}

// AnalyzeWith runs the pipeline on one symbol. Data and classifier failures
// are returned as *model.ScanError; threshold misses are a Rejection.
func (s *Scanner) AnalyzeWith(ctx context.Context, symbol, period, interval string) (Analysis, error) {
	a := Analysis{Symbol: symbol}
	_, step, err := marketdata.ParseInterval(interval)
	if err != nil {
		return a, &model.ScanError{Symbol: symbol, Err: err}
	}

	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	candles, err := s.source.Fetch(fctx, symbol, period, interval)
	cancel()
	if err != nil {
		s.met.Rejected(RejectFetch)
		return a, &model.ScanError{Symbol: symbol, Err: err}
	}
	if len(candles) < MinCandles {
		s.met.Rejected(RejectNoData)
		return a, &model.ScanError{
			Symbol: symbol,
			Err:    fmt.Errorf("%w: %d candles, need %d", model.ErrDataUnavailable, len(candles), MinCandles),
		}
	}

	rows := indicator.Enrich(candles)
	a.Rows = rows
	latest := rows[len(rows)-1]

	verdict := s.council.Decide(latest)

	clf := s.classifier()
	accuracy := clf.Train(rows)
	dir, confidence, err := clf.Predict(rows)
	if err != nil {
		s.met.Rejected(RejectClassifier)
		return a, &model.ScanError{Symbol: symbol, Err: err}
	}
	if confidence < s.cfg.MinConfidence {
		s.met.Rejected(RejectLowConfidence)
		a.Rejection = &Rejection{Reason: RejectLowConfidence, Value: confidence}
		return a, nil
	}

	var reg classifier.Regressor
	reg.Train(rows)
	path := reg.FuturePath(rows, classifier.PathSteps, step)

	score := Score(latest, dir, confidence, verdict)
	if score < s.cfg.MinScore {
		s.met.Rejected(RejectLowScore)
		a.Rejection = &Rejection{Reason: RejectLowScore, Value: score}
		return a, nil
	}

	a.Opportunity = &Opportunity{
		Symbol:        symbol,
		Score:         tradecalc.Round(score, 2),
		Direction:     dir,
		Prediction:    dir.String(),
		Confidence:    tradecalc.Round(confidence, 4),
		ModelAccuracy: tradecalc.Round(accuracy, 4),
		CurrentPrice:  latest.Close,
		Levels:        tradecalc.CalculateLevels(latest, dir, confidence),
		Next:          tradecalc.PredictNextCandle(latest, dir, confidence),
		Council:       verdict,
		FuturePath:    path,
		Candles:       ChartData(rows, chartCandles),
		Patterns:      latest.Patterns(),
		Indicators:    snapshot(latest),
	}
	return a, nil
}

// ScanAll analyzes every configured symbol with a bounded worker pool and
// returns the opportunities best first. Failed symbols are logged and left
// out; ties keep the order in which workers finished.
func (s *Scanner) ScanAll(ctx context.Context) ([]Opportunity, error) {
	start := s.now()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID("scan", start))
	slog.Info("scan started", append(logger.LogWithTrace(ctx),
		"symbols", len(s.cfg.Symbols), "workers", s.cfg.Workers)...)

	var (
		mu    sync.Mutex
		found []Opportunity
	)
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for _, sym := range s.cfg.Symbols {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			a, err := s.analyzeSafe(ctx, sym)
			switch {
			case err != nil:
				slog.Warn("symbol skipped", append(logger.LogWithTrace(ctx), "symbol", sym, "error", err)...)
			case a.Rejection != nil:
				slog.Info("symbol rejected", append(logger.LogWithTrace(ctx),
					"symbol", sym, "reason", a.Rejection.Reason, "value", a.Rejection.Value)...)
			default:
				slog.Info("opportunity found", append(logger.LogWithTrace(ctx),
					"symbol", sym, "score", a.Opportunity.Score)...)
				mu.Lock()
				found = append(found, *a.Opportunity)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	Rank(found)

	best := 0.0
	if len(found) > 0 {
		best = found[0].Score
	}
	elapsed := s.now().Sub(start)
	s.met.ObserveScan(elapsed, len(found), best)
	slog.Info("scan complete", append(logger.LogWithTrace(ctx),
		"found", len(found), "best_score", best, "duration_ms", elapsed.Milliseconds())...)

	return found, ctx.Err()
}

// analyzeSafe keeps a panicking symbol from taking the batch down.
func (s *Scanner) analyzeSafe(ctx context.Context, symbol string) (a Analysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &model.ScanError{Symbol: symbol, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return s.Analyze(ctx, symbol)
}

// Rank sorts opportunities by score, highest first, keeping the relative
// order of equal scores.
func Rank(opps []Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool { return opps[i].Score > opps[j].Score })
}

// Best returns the top-ranked opportunity of an already ranked slice.
func Best(opps []Opportunity) (Opportunity, bool) {
	if len(opps) == 0 {
		return Opportunity{}, false
	}
	return opps[0], true
}

// IsDataError reports whether err means the symbol had no usable history.
func IsDataError(err error) bool {
	return errors.Is(err, model.ErrDataUnavailable)
}

// ChartData returns the last n rows as chart candles.
func ChartData(rows []model.EnrichedRow, n int) []ChartCandle {
	if len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	out := make([]ChartCandle, len(rows))
	for i, r := range rows {
		out[i] = ChartCandle{
			Time:   r.TS.Unix(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return out
}

func snapshot(r model.EnrichedRow) Indicators {
	ind := Indicators{RSI: r.RSIOr(50)}
	if r.HasMACD {
		ind.MACD = r.MACD
	}
	if r.HasATR {
		ind.ATR = r.ATR
	}
	return ind
}
