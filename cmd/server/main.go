// Package main wires the single Runtime value (spec Design Notes §9:
// "a single Runtime value constructed at startup and threaded
// explicitly; no package-level mutable state") that drives the trading
// control loop, risk engine, position lifecycle, resilience layer, and
// liveness supervisor. The operator dashboard,
// its HTTP/WebSocket routes, and configuration-file parsing beyond
// internal/config are external collaborators outside this core's scope.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlas-desktop/trading-backend/internal/advisor"
	"github.com/atlas-desktop/trading-backend/internal/anomaly"
	"github.com/atlas-desktop/trading-backend/internal/cache"
	"github.com/atlas-desktop/trading-backend/internal/config"
	"github.com/atlas-desktop/trading-backend/internal/control"
	"github.com/atlas-desktop/trading-backend/internal/engine"
	"github.com/atlas-desktop/trading-backend/internal/eventbus"
	"github.com/atlas-desktop/trading-backend/internal/journal"
	"github.com/atlas-desktop/trading-backend/internal/lifecycle"
	"github.com/atlas-desktop/trading-backend/internal/pdt"
	"github.com/atlas-desktop/trading-backend/internal/regime"
	"github.com/atlas-desktop/trading-backend/internal/resilient"
	"github.com/atlas-desktop/trading-backend/internal/risk"
	"github.com/atlas-desktop/trading-backend/internal/strategy"
	"github.com/atlas-desktop/trading-backend/internal/supervisor"
	"github.com/atlas-desktop/trading-backend/internal/telemetry"
	"github.com/atlas-desktop/trading-backend/internal/venue"
	"github.com/atlas-desktop/trading-backend/internal/venue/crypto"
	"github.com/atlas-desktop/trading-backend/internal/venue/equity"
	"github.com/atlas-desktop/trading-backend/internal/workers"
)

// Runtime is the one value this process constructs at startup and
// threads explicitly through every goroutine it starts; nothing here
// is package-level mutable state.
type Runtime struct {
	logger     *zap.Logger
	cfg        config.Config
	bus        *eventbus.Bus
	journal    *journal.Journal
	supervisor *supervisor.Supervisor
	pool       *workers.Pool
	loops      []*control.ControlLoop
}

func main() {
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		// Configuration failure (including missing credentials for an
		// enabled profile) is a fatal startup error per spec §6 exit codes.
		logger := zap.NewExample()
		logger.Error("configuration load failed", zap.Error(err))
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	defer logger.Sync()

	rt, err := buildRuntime(logger, cfg)
	if err != nil {
		logger.Fatal("fatal broker-connection failure at startup", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	cancel()
	rt.Stop()
	logger.Info("engine stopped cleanly")
}

// buildRuntime constructs every component of the runtime,
// wired together per ProfileConfig, without any lazy re-reads of cfg.
func buildRuntime(logger *zap.Logger, cfg config.Config) (*Runtime, error) {
	reg := prometheus.NewRegistry()
	metrics := resilient.NewMetrics(reg)

	j, err := journal.Open(logger, cfg.JournalPath)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New(logger, eventbus.DefaultConfig())
	sup := supervisor.New(logger, bus)
	pool := workers.NewPool(logger, workers.DefaultPoolConfig("control"))
	pool.Start()

	strategyRegistry := strategy.NewStrategyRegistry(logger)

	rt := &Runtime{logger: logger, cfg: cfg, bus: bus, journal: j, supervisor: sup, pool: pool}

	for _, p := range cfg.Profiles {
		if !p.Enabled {
			continue
		}

		client, err := buildVenueClient(logger, cfg, p, metrics)
		if err != nil {
			return nil, err
		}

		c := cache.New(logger, client, cache.DefaultConfig(), cache.NewBarValidator(logger))
		pdtGuard := pdt.New(j, client.Name())
		drawdownGuard := risk.NewDrawdownGuard(cfg.MaxDrawdownPercent.Div(decimal.NewFromInt(100)))
		lifecycleMgr := lifecycle.New(logger, client)
		regimeDetector := regime.NewDetector(logger, regime.DefaultConfig())
		eng := engine.New(engine.DefaultConfig())
		advisors := buildAdvisorBus(logger, c, strategyRegistry)

		cl := control.New(logger, p, control.Deps{
			Client:    client,
			Cache:     c,
			Engine:    eng,
			RegimeDet: regimeDetector,
			Lifecycle: lifecycleMgr,
			Journal:   j,
			PDTGuard:  pdtGuard,
			Drawdown:  drawdownGuard,
			Bus:       bus,
			Advisors:  advisors,
			Anomalies: anomaly.NewMonitor(200),
			Pool:      pool,
			Heartbeat: sup,
			Universe:  control.StaticUniverse(p.Symbols),
			Kelly:     risk.DefaultKellyConfig(),
		})

		sup.Register(p.Name, p.CycleInterval*3, client)
		rt.loops = append(rt.loops, cl)
	}

	return rt, nil
}

// buildVenueClient selects and resilience-wraps the venue adapter for
// one profile's configured venue.
func buildVenueClient(logger *zap.Logger, cfg config.Config, p config.ProfileConfig, metrics *resilient.Metrics) (venue.BrokerClient, error) {
	var inner venue.BrokerClient
	switch p.Venue {
	case "crypto":
		cc := crypto.DefaultConfig()
		cc.APIKey = cfg.KrakenAPIKey
		cc.APISecret = cfg.KrakenAPISecret
		inner = crypto.New(logger, cc)
	default:
		ec := equity.DefaultConfig()
		ec.APIKey = cfg.AlpacaAPIKey
		ec.APISecret = cfg.AlpacaAPISecret
		inner = equity.New(logger, ec)
	}

	limiterFactory := func() *resilient.RateLimiter { return resilient.NewRateLimiter(5, 10) }
	return resilient.New(inner, logger, limiterFactory, resilient.DefaultBreakerConfig(), resilient.DefaultRetryConfig(), metrics), nil
}

// buildAdvisorBus registers the kept teacher strategies as best-effort
// advisor sources over the profile's own MarketDataCache, so the
// advisor bus has live sources rather than sitting unused.
func buildAdvisorBus(logger *zap.Logger, c *cache.Cache, registry *strategy.StrategyRegistry) *advisor.Bus {
	bus := advisor.New(logger)
	bars := &cacheBarSource{cache: c}
	for _, name := range []string{"momentum", "breakout", "trend_following"} {
		s, ok := registry.Create(name)
		if !ok {
			continue
		}
		bus.Register(advisor.Advisor{
			Name:   name,
			Weight: 1.0,
			Fn:     advisor.FromStrategy(s, bars),
		})
	}
	return bus
}

// cacheBarSource adapts the MarketDataCache's bar history into the
// advisor package's BarSource capability (synchronous, no context
// parameter) by asking for the single most recent bar.
type cacheBarSource struct {
	cache *cache.Cache
}

func (b *cacheBarSource) LatestBar(symbol string) (venue.Bar, bool) {
	bars, err := b.cache.Bars(context.Background(), symbol, 1)
	if err != nil || len(bars) == 0 {
		return venue.Bar{}, false
	}
	return bars[len(bars)-1], true
}

// Start launches one goroutine per ControlLoop, the Supervisor's
// monitor cron, and (if configured) the outbound heartbeat sender.
func (rt *Runtime) Start(ctx context.Context) {
	if err := rt.supervisor.Start("@every 30s"); err != nil {
		rt.logger.Error("failed to start supervisor monitor", zap.Error(err))
	}

	for _, cl := range rt.loops {
		cl := cl
		go cl.Run(ctx)
	}

	if rt.cfg.HeartbeatURL != "" {
		sender := telemetry.NewHeartbeatSender(rt.logger, rt.cfg.HeartbeatURL, 60*time.Second)
		go sender.Run(ctx)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: ":9090", Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			rt.logger.Warn("metrics listener stopped", zap.Error(err))
		}
	}()

	rt.logger.Info("trading engine started",
		zap.Int("profiles", len(rt.loops)),
		zap.Bool("autonomousTrading", rt.cfg.AutonomousTrading),
	)
}

// Stop tears down the Supervisor's monitor cron, the worker pool, the
// event bus, and the journal, in that order, so in-flight beats and published events are
// drained before storage closes.
func (rt *Runtime) Stop() {
	rt.supervisor.Stop()
	if err := rt.pool.Stop(); err != nil {
		rt.logger.Warn("worker pool stop error", zap.Error(err))
	}
	rt.bus.Close()
	if err := rt.journal.Close(); err != nil {
		rt.logger.Warn("journal close error", zap.Error(err))
	}
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}
