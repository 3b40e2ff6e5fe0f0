package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"supertrend-bot/internal/broker/angelone"
	"supertrend-bot/internal/broker/brokerobs"
	"supertrend-bot/internal/engine"
	"supertrend-bot/internal/engine/engineobs"
	"supertrend-bot/internal/eod"
	"supertrend-bot/internal/eod/eodobs"
	"supertrend-bot/internal/events"
	"supertrend-bot/internal/interfaces"
	"supertrend-bot/internal/journal"
	"supertrend-bot/internal/logger"
	"supertrend-bot/internal/market"
	"supertrend-bot/internal/server"
	"supertrend-bot/internal/store"
	"supertrend-bot/internal/trace"
	"supertrend-bot/internal/tradelog"
	"supertrend-bot/internal/types"
)

// initializeSystem loads .env and starts the logger and tracer.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// compressOldLogs gzips trade logs older than TRADER_LOG_RETENTION_DAYS.
func compressOldLogs(ctx context.Context) {
	v := os.Getenv("TRADER_LOG_RETENTION_DAYS")
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn(ctx, "Ignoring invalid TRADER_LOG_RETENTION_DAYS", "value", v)
		return
	}
	if err := tradelog.CompressOlder(n); err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
	}
}

// initializeBroker builds the SmartAPI client wrapped with observability.
func initializeBroker(ctx context.Context, cfg *store.Config) (interfaces.Broker, error) {
	creds := angelone.CredentialsFromEnv()
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	client, err := angelone.New(cfg, creds)
	if err != nil {
		return nil, err
	}
	if client.DryRun() {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated")
	} else {
		logger.Warn(ctx, "Running in LIVE mode - orders will be sent to Angel One")
	}
	return brokerobs.Wrap(client), nil
}

// initializeJournal opens the SQLite trade journal. An empty path disables it.
func initializeJournal(ctx context.Context, cfg *store.Config) (*journal.Journal, error) {
	if cfg.Journal.Path == "" {
		logger.Info(ctx, "Trade journal disabled")
		return nil, nil
	}
	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "Trade journal opened", "path", cfg.Journal.Path)
	return j, nil
}

// newSessionFactory builds sessions sharing the broker, journal and bus, each
// with an observable step.
func newSessionFactory(cfg *store.Config, brk interfaces.Broker, tj interfaces.TradeJournal, bus *events.Bus) engine.SessionFactory {
	return func(job engine.Job) (*engine.Session, error) {
		opts := []engine.Option{
			engine.WithBus(bus),
			engine.WithStepWrapper(engineobs.Wrap),
		}
		if tj != nil {
			opts = append(opts, engine.WithJournal(tj))
		}
		return engine.NewSession(cfg, brk, job, opts...)
	}
}

func initializeServer(cfg *store.Config, mgr *engine.Manager, brk interfaces.Broker, tj interfaces.TradeJournal, bus *events.Bus) *server.Server {
	return server.New(mgr, brk, tj, bus, server.Options{
		JWTSecret:         os.Getenv("SERVER_JWT_SECRET"),
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
		RequestTimeout:    time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
		DryRun:            cfg.Mode != "LIVE",
	})
}

// initializeEOD installs the observable EOD summarizer for the configured session.
func initializeEOD(cfg *store.Config) error {
	hours, err := market.NewHours(cfg.Market.Open, cfg.Market.Close)
	if err != nil {
		return err
	}
	eod.SetDefaultSummarizer(eodobs.Wrap(eod.NewSummarizer(hours)))
	return nil
}

// autostart starts the session configured under autostart, if any.
func autostart(ctx context.Context, cfg *store.Config, mgr *engine.Manager) {
	a := cfg.Autostart
	if a.SymbolToken == "" {
		return
	}
	exchange := a.Exchange
	if exchange == "" {
		exchange = "NSE"
	}
	job := engine.Job{
		Instrument: types.Instrument{TradingSymbol: a.TradingSymbol, SymbolToken: a.SymbolToken, Exchange: exchange},
		Qty:        a.Quantity,
	}
	st, err := mgr.Start(ctx, job)
	if err != nil {
		logger.ErrorWithErr(ctx, "Autostart failed", err, "symbol", a.TradingSymbol)
		return
	}
	logger.Info(ctx, "Autostarted session", "symbol", a.TradingSymbol, "session_id", st.ID)
}

func runEOD(ctx context.Context) {
	if ok, _ := eod.ShouldRunNow(); !ok {
		return
	}
	if p, err := eod.SummarizeToday(); err == nil && p != "" {
		logger.Info(ctx, "EOD CSV written", "path", p)
	}
}
