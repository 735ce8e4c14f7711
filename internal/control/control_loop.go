// Package control implements ControlLoop: one instance per ProfileConfig,
// driving the per-cycle account-refresh -> status-broadcast ->
// drawdown-check -> universe -> per-symbol signal/size/dispatch ->
// heartbeat sequence: a ticking goroutine around a single per-iteration
// method) generalized from one hardcoded loop to N independently
// configured profiles sharing the workers.Pool for bounded per-symbol
// concurrency.
package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/advisor"
	"github.com/atlas-desktop/trading-backend/internal/anomaly"
	"github.com/atlas-desktop/trading-backend/internal/cache"
	"github.com/atlas-desktop/trading-backend/internal/config"
	"github.com/atlas-desktop/trading-backend/internal/engine"
	"github.com/atlas-desktop/trading-backend/internal/eventbus"
	"github.com/atlas-desktop/trading-backend/internal/indicators"
	"github.com/atlas-desktop/trading-backend/internal/journal"
	"github.com/atlas-desktop/trading-backend/internal/lifecycle"
	"github.com/atlas-desktop/trading-backend/internal/pdt"
	"github.com/atlas-desktop/trading-backend/internal/regime"
	"github.com/atlas-desktop/trading-backend/internal/risk"
	"github.com/atlas-desktop/trading-backend/internal/venue"
	"github.com/atlas-desktop/trading-backend/internal/workers"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Heartbeat is the capability ControlLoop needs from the Supervisor: beat
// its own name so a silent cycle can be detected without depending on the
// Supervisor's full surface.
type Heartbeat interface {
	Beat(name string)
}

// Universe supplies the bullish/bearish symbol sets for the current
// regime; a thin seam so tests can substitute a fixed universe instead of
// a live screener.
type Universe interface {
	SymbolsFor(regime.MarketRegime) []string
}

// StaticUniverse is the simplest Universe: the same symbol list
// regardless of regime.
type StaticUniverse []string

func (u StaticUniverse) SymbolsFor(regime.MarketRegime) []string { return u }

// paramStore is the mutable, SafeMode-clampable tuning surface for one
// ControlLoop. It satisfies anomaly.ParameterStore.
type paramStore struct {
	mu     sync.Mutex
	params anomaly.Parameters
}

func newParamStore(cycleInterval time.Duration) *paramStore {
	return &paramStore{params: anomaly.Parameters{
		PositionSizeMultiplier: 1.0,
		StopMultiplier:         1.0,
		CycleInterval:          cycleInterval,
		EntriesPaused:          false,
	}}
}

func (p *paramStore) Current() anomaly.Parameters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params
}

func (p *paramStore) Apply(next anomaly.Parameters) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.params = next
}

// ControlLoop drives one ProfileConfig's trading cycle.
type ControlLoop struct {
	logger *zap.Logger
	cfg    config.ProfileConfig

	client    venue.BrokerClient
	cache     *cache.Cache
	engine    *engine.Engine
	regimeDet *regime.Detector
	lifecycle *lifecycle.Manager
	journal   *journal.Journal
	pdtGuard  *pdt.Guard
	drawdown  *risk.DrawdownGuard
	bus       *eventbus.Bus
	advisors  *advisor.Bus
	anomalies *anomaly.Monitor
	safeMode  *anomaly.SafeMode
	pool      *workers.Pool
	heartbeat Heartbeat
	universe  Universe
	kelly     risk.KellyConfig

	Params *paramStore

	mu          sync.Mutex
	positions   map[string]lifecycle.TradePosition
	boughtToday map[string]bool
	lastClose   map[string]decimal.Decimal
}

// Deps bundles ControlLoop's collaborators so the constructor's argument
// list stays readable.
type Deps struct {
	Client    venue.BrokerClient
	Cache     *cache.Cache
	Engine    *engine.Engine
	RegimeDet *regime.Detector
	Lifecycle *lifecycle.Manager
	Journal   *journal.Journal
	PDTGuard  *pdt.Guard
	Drawdown  *risk.DrawdownGuard
	Bus       *eventbus.Bus
	Advisors  *advisor.Bus
	Anomalies *anomaly.Monitor
	Pool      *workers.Pool
	Heartbeat Heartbeat
	Universe  Universe
	Kelly     risk.KellyConfig
}

// New creates a ControlLoop for profile cfg.
func New(logger *zap.Logger, cfg config.ProfileConfig, d Deps) *ControlLoop {
	if d.Anomalies == nil {
		d.Anomalies = anomaly.NewMonitor(0)
	}
	cl := &ControlLoop{
		logger:      logger.Named("control." + cfg.Name),
		cfg:         cfg,
		client:      d.Client,
		cache:       d.Cache,
		engine:      d.Engine,
		regimeDet:   d.RegimeDet,
		lifecycle:   d.Lifecycle,
		journal:     d.Journal,
		pdtGuard:    d.PDTGuard,
		drawdown:    d.Drawdown,
		bus:         d.Bus,
		advisors:    d.Advisors,
		anomalies:   d.Anomalies,
		pool:        d.Pool,
		heartbeat:   d.Heartbeat,
		universe:    d.Universe,
		kelly:       d.Kelly,
		Params:      newParamStore(cfg.CycleInterval),
		positions:   make(map[string]lifecycle.TradePosition),
		boughtToday: make(map[string]bool),
		lastClose:   make(map[string]decimal.Decimal),
	}
	cl.safeMode = anomaly.New(logger, cl.Params, d.Bus)
	return cl
}

// Run ticks RunCycle at the profile's (possibly SafeMode-halved) interval
// until ctx is canceled.
func (cl *ControlLoop) Run(ctx context.Context) {
	for {
		interval := cl.Params.Current().CycleInterval
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			if err := cl.RunCycle(ctx); err != nil {
				cl.logger.Error("cycle failed", zap.Error(err))
			}
		}
	}
}

// RunCycle executes exactly one pass of the six-step sequence.
func (cl *ControlLoop) RunCycle(ctx context.Context) error {
	// 1. refresh account/positions.
	snap, err := cl.cache.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh account: %w", err)
	}

	// 2. broadcast health/market status.
	cl.bus.Publish(eventbus.NewStatusEvent(cl.cfg.Name, snap.Account.Equity, cl.openSymbols(), "cycle start"))

	if z, class := cl.anomalies.CheckAnomaly(cl.cfg.Name+".equity", mustFloat(snap.Account.Equity)); class != anomaly.ClassificationNormal {
		cl.bus.Publish(eventbus.NewAnomalyEvent("equity", mustFloat(snap.Account.Equity), z, string(class)))
		if class == anomaly.ClassificationCritical {
			cl.safeMode.Activate("equity z-score critical", true)
		}
	}

	tripped := cl.drawdown.Update(snap.Account.Equity)
	if tripped {
		_, reason := cl.drawdown.Tripped()
		cl.bus.Publish(eventbus.NewRiskAlertEvent("critical", "", reason))
		cl.heartbeat.Beat(cl.cfg.Name)
		return nil // 3. drawdown tripped: skip straight to heartbeat.
	}

	// 4. active symbol universe = regime screen ∪ already-held symbols.
	current := cl.regimeDet.Current()
	symbols := cl.activeSymbols(current.Regime)

	// 5. per-symbol evaluation, bounded by the shared worker pool.
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		symbol := symbol
		wg.Add(1)
		submitErr := cl.pool.SubmitFunc(func() error {
			defer wg.Done()
			if err := cl.evaluateSymbol(ctx, symbol, snap.Account.Equity); err != nil {
				cl.logger.Warn("symbol evaluation failed", zap.String("symbol", symbol), zap.Error(err))
			}
			return nil
		})
		if submitErr != nil {
			wg.Done()
			cl.logger.Warn("pool rejected symbol task", zap.String("symbol", symbol), zap.Error(submitErr))
		}
	}
	wg.Wait()

	// 6. beat the Supervisor.
	cl.heartbeat.Beat(cl.cfg.Name)
	return nil
}

func (cl *ControlLoop) openSymbols() []string {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	out := make([]string, 0, len(cl.positions))
	for s := range cl.positions {
		out = append(out, s)
	}
	return out
}

func (cl *ControlLoop) activeSymbols(r regime.MarketRegime) []string {
	screened := cl.universe.SymbolsFor(r)
	seen := make(map[string]bool, len(screened))
	out := make([]string, 0, len(screened))
	for _, s := range screened {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for s := range cl.positions {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// evaluateSymbol runs exit-before-entry evaluation for one symbol: refresh
// bars, classify regime/volatility, compute a signal, consult the
// PDTGuard/AnomalyMonitor/advisor bus, then dispatch through
// PositionLifecycle.
func (cl *ControlLoop) evaluateSymbol(ctx context.Context, symbol string, equity decimal.Decimal) error {
	bars, err := cl.cache.Bars(ctx, symbol, 60)
	if err != nil || len(bars) == 0 {
		return err
	}
	last := bars[len(bars)-1]

	cl.mu.Lock()
	prev, hadPrev := cl.lastClose[symbol]
	cl.lastClose[symbol] = last.Close
	cl.mu.Unlock()
	if hadPrev && anomaly.PriceMoveAnomaly(prev, last.Close) {
		cl.bus.Publish(eventbus.NewAnomalyEvent("price_move", mustFloat(last.Close), 0, "critical"))
		return nil // suppress trading this symbol this cycle
	}

	trend, volIndex := trendAndVolatility(bars)
	state := cl.regimeDet.Classify(trend, volIndex)
	sig := cl.engine.Signal(symbol, state.Regime, state.Volatility, bars)
	cl.bus.Publish(eventbus.NewSignalEvent(symbol, string(sig.Action), sig.Reason))

	advisorScore := cl.advisors.Combined(ctx, symbol)

	cl.mu.Lock()
	pos, open := cl.positions[symbol]
	cl.mu.Unlock()

	if open {
		return cl.manageOpenPosition(ctx, symbol, pos, sig, last.Close, equity)
	}
	if sig.Action != engine.ActionBuy {
		return nil
	}
	if cl.Params.Current().EntriesPaused {
		return nil
	}
	// An advisor bus in clear disagreement with a Buy signal vetoes entry
	// rather than fighting the StrategyEngine outright.
	if advisorScore < advisor.NeutralScore-0.2 {
		cl.bus.Publish(eventbus.NewRiskAlertEvent("info", symbol, "advisor veto on entry"))
		return nil
	}
	return cl.openEntry(ctx, symbol, last.Close, equity)
}

func (cl *ControlLoop) manageOpenPosition(ctx context.Context, symbol string, pos lifecycle.TradePosition, sig engine.Signal, price, equity decimal.Decimal) error {
	pos = cl.lifecycle.AdvanceTrailingStop(ctx, pos, price, cl.cfg.TrailingStopPercent)

	if next, triggered, err := cl.lifecycle.EvaluateExit(ctx, pos, price); err != nil {
		return err
	} else if triggered {
		return cl.closePosition(ctx, symbol, next, "stop_or_target")
	}

	if sig.Action == engine.ActionSell {
		boughtToday := cl.boughtTodayFlag(symbol)
		allowed, err := cl.pdtGuard.AllowSell(ctx, equity, symbol, boughtToday)
		if err != nil {
			return err
		}
		if !allowed {
			cl.bus.Publish(eventbus.NewRiskAlertEvent("warning", symbol, "PDT guard denied sell"))
			cl.mu.Lock()
			cl.positions[symbol] = pos
			cl.mu.Unlock()
			return nil
		}
		next, err := cl.lifecycle.EvaluateSignalExit(ctx, pos)
		if err != nil {
			return err
		}
		return cl.closePosition(ctx, symbol, next, "signal_exit")
	}

	cl.mu.Lock()
	cl.positions[symbol] = pos
	cl.mu.Unlock()
	return nil
}

func (cl *ControlLoop) closePosition(ctx context.Context, symbol string, pos lifecycle.TradePosition, reason string) error {
	pnl := pos.HighestSeenPrice.Sub(pos.EntryPrice).Mul(pos.Quantity)
	cl.bus.Publish(eventbus.NewFillEvent(symbol, "sell", pnl, reason))

	record := journal.TradeRecord{
		ID: pos.ID, Symbol: symbol, Venue: cl.client.Name(), Side: "long",
		Quantity: pos.Quantity, EntryPrice: pos.EntryPrice, ExitPrice: pos.HighestSeenPrice,
		EntryTime: pos.EntryTime, ExitTime: timeNow(), PnL: pnl, Reason: reason,
	}
	if err := cl.journal.Append(ctx, record); err != nil {
		cl.logger.Warn("journal append failed", zap.String("symbol", symbol), zap.Error(err))
	}

	cl.mu.Lock()
	delete(cl.positions, symbol)
	delete(cl.boughtToday, symbol)
	cl.mu.Unlock()
	return nil
}

func (cl *ControlLoop) openEntry(ctx context.Context, symbol string, price, equity decimal.Decimal) error {
	tier := risk.TierFor(equity)
	params := risk.ParametersFor(tier)

	stopLoss, takeProfit := risk.StopTarget(price, cl.cfg.StopLossPercent, cl.cfg.TakeProfitPercent, params)

	// volIndex clamped to the table's neutral floor; the live per-symbol
	// volatility reading already shaped the StrategyEngine's regime dispatch.
	volIndex := decimal.NewFromInt(20)
	sizeResult := risk.Size(params, equity, price, stopLoss, volIndex)
	if !sizeResult.Accepted {
		cl.bus.Publish(eventbus.NewRiskAlertEvent("info", symbol, "sizing rejected: "+sizeResult.Reason))
		return nil
	}

	shares := sizeResult.Shares.Mul(decimal.NewFromFloat(cl.Params.Current().PositionSizeMultiplier))

	if stats, err := cl.journal.SymbolStatistics(ctx, cl.client.Name(), symbol); err == nil && stats.TotalTrades >= 10 {
		rewardToRisk := decimal.NewFromInt(1)
		if !stats.AvgLoss.IsZero() {
			rewardToRisk = stats.AvgWin.Div(stats.AvgLoss.Abs())
		}
		kellyValue := risk.KellySize(equity, stats.WinRate, rewardToRisk, cl.kelly)
		kellyShares := kellyValue.Div(price)
		if kellyShares.LessThan(shares) {
			shares = kellyShares
		}
	}

	if shares.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	pos, err := cl.lifecycle.OpenPosition(ctx, symbol, shares, price, stopLoss, takeProfit)
	if err != nil {
		return fmt.Errorf("open position %s: %w", symbol, err)
	}

	cl.mu.Lock()
	cl.positions[symbol] = pos
	cl.boughtToday[symbol] = true
	cl.mu.Unlock()

	cl.bus.Publish(eventbus.NewOrderEvent(symbol, "buy", shares, price, "submitted"))
	return nil
}

func (cl *ControlLoop) boughtTodayFlag(symbol string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.boughtToday[symbol]
}

// trendAndVolatility derives the StrategyEngine/RegimeDetector's scalar
// inputs from bar history: trend as the fractional distance of the latest
// close from its 20-period SMA (clamped to [-1,1]), volatility as ATR(14)
// expressed as a percentage of the latest close.
func trendAndVolatility(bars []venue.Bar) (trend, volatilityIndex float64) {
	closes := indicators.Closes(bars)
	sma := indicators.SMA(closes, 20)
	last := closes[len(closes)-1]

	if sma.IsZero() {
		trend = 0
	} else {
		t, _ := last.Sub(sma).Div(sma).Float64()
		if t > 1 {
			t = 1
		}
		if t < -1 {
			t = -1
		}
		trend = t
	}

	atr := indicators.ATR(bars, 14)
	if !last.IsZero() {
		vi, _ := atr.Div(last).Mul(decimal.NewFromInt(100)).Float64()
		volatilityIndex = vi
	}
	return trend, volatilityIndex
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func timeNow() time.Time { return time.Now() }
