package engine

import (
	"testing"

	"supertrend-bot/internal/types"
)

func TestLedgerEmpty(t *testing.T) {
	l := NewLedger()
	if l.WinRate() != 0 {
		t.Errorf("Expected win rate 0 with no trades, got %.2f", l.WinRate())
	}
	if p := l.Snapshot(); p.Trades != 0 || p.NetPnL != 0 {
		t.Errorf("Expected empty snapshot, got %+v", p)
	}
}

func TestLedgerRecord(t *testing.T) {
	l := NewLedger()
	for _, pnl := range []float64{10, -5, 0} {
		l.Record(types.ClosedTrade{PnL: pnl})
	}

	p := l.Snapshot()
	if p.Trades != 3 {
		t.Errorf("Expected 3 trades, got %d", p.Trades)
	}
	if p.Wins != 1 || p.Losses != 1 {
		t.Errorf("Expected 1 win and 1 loss, got %d/%d", p.Wins, p.Losses)
	}
	if p.GrossProfit != 10 || p.GrossLoss != 5 || p.NetPnL != 5 {
		t.Errorf("Expected 10/5/5, got %.2f/%.2f/%.2f", p.GrossProfit, p.GrossLoss, p.NetPnL)
	}
	if p.WinRate != 33.33 {
		t.Errorf("Expected win rate 33.33, got %.4f", p.WinRate)
	}
}

func TestLedgerNoDrift(t *testing.T) {
	l := NewLedger()
	for i := 0; i < 10; i++ {
		l.Record(types.ClosedTrade{PnL: 0.1})
	}
	if p := l.Snapshot(); p.NetPnL != 1 {
		t.Errorf("Expected net 1, got %v", p.NetPnL)
	}
}
