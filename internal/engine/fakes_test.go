package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"supertrend-bot/internal/candles"
	"supertrend-bot/internal/market"
	"supertrend-bot/internal/store"
	"supertrend-bot/internal/types"
)

// fakeBroker serves queued quotes and records every order.
type fakeBroker struct {
	mu sync.Mutex

	loginErr error
	// loginGate, when set, blocks Login until it is closed or ctx ends.
	loginGate  chan struct{}
	history    []types.Bar
	historyErr error
	quotes     []types.Quote
	quoteCalls int
	orders     []types.OrderReq
	// rejectAt makes the n-th order (1-based) fail; 0 accepts all.
	rejectAt int
}

func (f *fakeBroker) Login(ctx context.Context) error {
	if f.loginGate != nil {
		select {
		case <-f.loginGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.loginErr
}

func (f *fakeBroker) FetchHistory(context.Context, types.Instrument, candles.Interval, time.Time, time.Time) ([]types.Bar, error) {
	return f.history, f.historyErr
}

func (f *fakeBroker) FetchQuote(context.Context, types.Instrument) (types.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteCalls++
	if len(f.quotes) == 0 {
		return types.Quote{}, fmt.Errorf("%w: no quote", types.ErrNetwork)
	}
	q := f.quotes[0]
	if len(f.quotes) > 1 {
		f.quotes = f.quotes[1:]
	}
	return q, nil
}

func (f *fakeBroker) PlaceOrder(_ context.Context, req types.OrderReq) (types.OrderResp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.orders) + 1
	if f.rejectAt == n {
		f.rejectAt = 0
		return types.OrderResp{}, &types.OrderRejectedError{Code: "AB4008", Message: "margin exceeded"}
	}
	f.orders = append(f.orders, req)
	return types.OrderResp{OrderID: fmt.Sprintf("ORD-%d", n), Status: "success"}, nil
}

func (f *fakeBroker) placed() []types.OrderReq {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.OrderReq(nil), f.orders...)
}

func (f *fakeBroker) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quoteCalls
}

var testInstrument = types.Instrument{TradingSymbol: "SBIN-EQ", SymbolToken: "3045", Exchange: "NSE"}

// monday10am is inside market hours (2024-03-11 is a Monday).
var monday10am = time.Date(2024, 3, 11, 10, 0, 0, 0, market.IST)

// swingCloses rises, breaks down, then breaks back up. With length 2 and
// multiplier 1 the signal is BUY, BUY, SELL (changed), BUY (changed) from
// the second bar on.
var swingCloses = []float64{100, 102, 104, 90, 110}

func testConfig(t *testing.T) *store.Config {
	t.Helper()
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	cfg := store.Default()
	cfg.Supertrend.Length = 2
	cfg.Supertrend.Multiplier = 1
	cfg.Stop.MinTick = 0.05
	cfg.Broker.TimeoutSeconds = 1
	return cfg
}

func tickBar(at time.Time, price float64) types.Bar {
	return types.Bar{Time: at, Open: price, High: price, Low: price, Close: price, Volume: 10}
}

func quoteAt(at time.Time, price, dayVolume float64) types.Quote {
	return types.Quote{Time: at, LTP: price, Open: price, High: price, Low: price, Close: price, Volume: dayVolume}
}

func newTestSession(t *testing.T, cfg *store.Config, brk *fakeBroker, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return monday10am })}, opts...)
	s, err := NewSession(cfg, brk, Job{Instrument: testInstrument, Qty: 1}, opts...)
	if err != nil {
		t.Fatalf("Expected no error creating session, got %v", err)
	}
	return s
}

// stepAll feeds one quote per minute through Step and returns every result.
func stepAll(t *testing.T, s *Session, brk *fakeBroker, closes []float64) []*types.StepResult {
	t.Helper()
	var out []*types.StepResult
	for i, c := range closes {
		at := monday10am.Add(time.Duration(i) * time.Minute)
		brk.mu.Lock()
		brk.quotes = []types.Quote{quoteAt(at, c, float64(100*(i+1)))}
		brk.mu.Unlock()
		res, err := s.Step(context.Background())
		if err != nil {
			t.Fatalf("Step %d: expected no error, got %v", i, err)
		}
		out = append(out, res)
	}
	return out
}

type recordingJournal struct {
	mu     sync.Mutex
	trades []types.ClosedTrade
	err    error
}

func (j *recordingJournal) RecordTrade(_ context.Context, t types.ClosedTrade) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.trades = append(j.trades, t)
	return nil
}

func (j *recordingJournal) ListTrades(context.Context, string, int) ([]types.ClosedTrade, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]types.ClosedTrade(nil), j.trades...), nil
}

var errBoom = errors.New("boom")
