package engine

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"supertrend-bot/internal/candles"
	"supertrend-bot/internal/store"
	"supertrend-bot/internal/types"
)

// BacktestResult is the outcome of replaying history through a session.
type BacktestResult struct {
	Bars        int                 `json:"bars"`
	Trades      []types.ClosedTrade `json:"trades"`
	Performance types.Performance   `json:"performance"`
	Final       types.Position      `json:"final_position"`
}

// Backtest replays bars in one linear pass through the same window,
// indicator, signal and position logic as a live session. Orders are filled
// at the proposed price. A position still open after the last bar is closed at
// its close. Nothing is written to the daily trade log.
func Backtest(ctx context.Context, cfg *store.Config, job Job, bars []types.Bar) (*BacktestResult, error) {
	fills := &fillingBroker{}
	journal := &memJournal{}
	s, err := NewSession(cfg, fills, job, WithJournal(journal), WithoutTradeLog())
	if err != nil {
		return nil, err
	}
	s.exec.timeout = 0

	sorted := append([]types.Bar(nil), bars...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	for _, b := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.window.Update(b); err != nil {
			return nil, fmt.Errorf("bar %s: %w", b.Time.Format(time.RFC3339), err)
		}
		s.now = func() time.Time { return b.Time }
		if _, err := s.evaluate(ctx); err != nil {
			return nil, err
		}
	}
	if err := s.closeOpenPosition(ctx, ReasonSessionStop); err != nil {
		return nil, err
	}

	return &BacktestResult{
		Bars:        len(sorted),
		Trades:      journal.trades,
		Performance: s.ledger.Snapshot(),
		Final:       s.positions.current(),
	}, nil
}

// fillingBroker acknowledges every order. Market data calls are unused.
type fillingBroker struct {
	seq atomic.Int64
}

func (b *fillingBroker) Login(context.Context) error { return nil }

func (b *fillingBroker) FetchHistory(context.Context, types.Instrument, candles.Interval, time.Time, time.Time) ([]types.Bar, error) {
	return nil, nil
}

func (b *fillingBroker) FetchQuote(context.Context, types.Instrument) (types.Quote, error) {
	return types.Quote{}, fmt.Errorf("%w: no live quotes in backtest", types.ErrNetwork)
}

func (b *fillingBroker) PlaceOrder(_ context.Context, req types.OrderReq) (types.OrderResp, error) {
	return types.OrderResp{
		OrderID: fmt.Sprintf("BT-%d", b.seq.Add(1)),
		Status:  "FILLED",
		Message: req.Tag,
	}, nil
}

type memJournal struct {
	trades []types.ClosedTrade
}

func (j *memJournal) RecordTrade(_ context.Context, t types.ClosedTrade) error {
	j.trades = append(j.trades, t)
	return nil
}

func (j *memJournal) ListTrades(_ context.Context, token string, limit int) ([]types.ClosedTrade, error) {
	var out []types.ClosedTrade
	for i := len(j.trades) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if j.trades[i].SymbolToken == token {
			out = append(out, j.trades[i])
		}
	}
	return out, nil
}
