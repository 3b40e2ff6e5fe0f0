package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"supertrend-bot/internal/broker/angelone"
	"supertrend-bot/internal/candles"
	"supertrend-bot/internal/engine"
	"supertrend-bot/internal/logger"
	"supertrend-bot/internal/market"
	"supertrend-bot/internal/store"
	"supertrend-bot/internal/types"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	symbol := flag.String("symbol", "", "trading symbol, e.g. SBIN-EQ (required)")
	token := flag.String("token", "", "symbol token, e.g. 3045 (required)")
	exchange := flag.String("exchange", "NSE", "exchange segment")
	qty := flag.Int("qty", 0, "quantity per trade (default from config)")
	from := flag.String("from", "", "first day YYYY-MM-DD (default: last trading session)")
	to := flag.String("to", "", "last day YYYY-MM-DD (default: same as -from)")
	length := flag.Int("length", 0, "Supertrend ATR length (default from config)")
	mult := flag.Float64("mult", 0, "Supertrend multiplier (default from config)")
	asJSON := flag.Bool("json", false, "print the result as JSON")
	flag.Parse()

	if *symbol == "" || *token == "" {
		fmt.Println("Error: -symbol and -token are required")
		flag.Usage()
		os.Exit(1)
	}

	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	cfg, err := store.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	// Backtests never send orders.
	cfg.Mode = "DRY_RUN"

	start, end, err := backtestRange(cfg, *from, *to)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	interval, err := candles.ParseInterval(cfg.Interval)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	client, err := angelone.New(cfg, angelone.CredentialsFromEnv())
	if err != nil {
		fmt.Printf("Error creating broker client: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := client.Login(ctx); err != nil {
		fmt.Printf("Error logging in: %v\n", err)
		os.Exit(1)
	}

	inst := types.Instrument{TradingSymbol: *symbol, SymbolToken: *token, Exchange: *exchange}
	bars, err := client.FetchHistory(ctx, inst, interval, start, end)
	if err != nil {
		fmt.Printf("Error fetching history: %v\n", err)
		os.Exit(1)
	}

	res, err := engine.Backtest(ctx, cfg, engine.Job{
		Instrument: inst,
		Qty:        *qty,
		Length:     *length,
		Multiplier: *mult,
	}, bars)
	if err != nil {
		fmt.Printf("Error running backtest: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
		return
	}
	printResult(inst, start, end, res)
}

// backtestRange resolves -from/-to into session bounds. Without -from the
// most recent complete trading session is used.
func backtestRange(cfg *store.Config, from, to string) (time.Time, time.Time, error) {
	hours, err := market.NewHours(cfg.Market.Open, cfg.Market.Close)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if from == "" {
		s, e := hours.LastSession(time.Now())
		return s, e, nil
	}
	first, err := time.ParseInLocation("2006-01-02", from, market.IST)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -from: %w", err)
	}
	last := first
	if to != "" {
		if last, err = time.ParseInLocation("2006-01-02", to, market.IST); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -to: %w", err)
		}
	}
	if last.Before(first) {
		return time.Time{}, time.Time{}, fmt.Errorf("-to %s is before -from %s", to, from)
	}
	return hours.OpenAt(first), hours.CloseAt(last), nil
}

func printResult(inst types.Instrument, start, end time.Time, res *engine.BacktestResult) {
	p := res.Performance
	fmt.Printf("Supertrend backtest for %s (%s)\n", inst.TradingSymbol, inst.SymbolToken)
	fmt.Printf("Range: %s -> %s, %d bars\n", start.Format("2006-01-02 15:04"), end.Format("2006-01-02 15:04"), res.Bars)
	fmt.Println("─────────────────────────────────────────────────────────────")
	for _, t := range res.Trades {
		fmt.Printf("%s  %-5s qty=%-4d entry=%-10.2f exit=%-10.2f pnl=%-10.2f %s\n",
			t.ClosedAt.In(market.IST).Format("01-02 15:04"), t.Side, t.Qty, t.EntryPrice, t.ExitPrice, t.PnL, t.Reason)
	}
	fmt.Println("─────────────────────────────────────────────────────────────")
	fmt.Printf("Trades: %d  Wins: %d  Losses: %d  Win rate: %.2f%%\n", p.Trades, p.Wins, p.Losses, p.WinRate)
	fmt.Printf("Gross profit: %.2f  Gross loss: %.2f  Net PnL: %.2f\n", p.GrossProfit, p.GrossLoss, p.NetPnL)
}
