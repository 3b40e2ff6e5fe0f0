package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supertrend-bot/internal/engine"
	"supertrend-bot/internal/eod"
	"supertrend-bot/internal/events"
	"supertrend-bot/internal/interfaces"
	"supertrend-bot/internal/logger"
	"supertrend-bot/internal/server"
	"supertrend-bot/internal/trace"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	mintSubject := flag.String("mint-token", "", "print a bearer token for this operator and exit (needs SERVER_JWT_SECRET)")
	mintTTL := flag.Duration("mint-ttl", 24*time.Hour, "validity of a minted token")
	flag.Parse()

	must(initializeSystem())
	defer logger.Close()

	if *mintSubject != "" {
		token, err := server.MintToken(os.Getenv("SERVER_JWT_SECRET"), *mintSubject, *mintTTL)
		must(err)
		fmt.Println(token)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(ctx, *configPath)
	must(err)
	compressOldLogs(ctx)
	must(initializeEOD(cfg))

	brk, err := initializeBroker(ctx, cfg)
	must(err)

	jr, err := initializeJournal(ctx, cfg)
	must(err)
	var tj interfaces.TradeJournal
	if jr != nil {
		tj = jr
		defer jr.Close()
	}

	bus := events.NewBus()
	mgr := engine.NewManager(newSessionFactory(cfg, brk, tj, bus))
	srv := initializeServer(cfg, mgr, brk, tj, bus)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start(cfg.Server.Addr) }()

	autostart(ctx, cfg, mgr)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	eodTick := time.NewTicker(60 * time.Second)
	defer eodTick.Stop()

	logger.Info(ctx, "Bot started", "mode", cfg.Mode, "addr", cfg.Server.Addr)
loop:
	for {
		select {
		case <-eodTick.C:
			runEOD(ctx)
		case err := <-serveErr:
			if err != nil {
				logger.ErrorWithErr(ctx, "HTTP server stopped", err)
			}
			break loop
		case <-sigc:
			logger.Info(ctx, "Shutting down...")
			break loop
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, "HTTP server shutdown failed", "error", err)
	}
	mgr.StopAll(shutdownCtx)
	if p, err := eod.SummarizeToday(); err == nil && p != "" {
		logger.Info(ctx, "EOD CSV written", "path", p)
	}
	_ = trace.Shutdown(shutdownCtx)
}
