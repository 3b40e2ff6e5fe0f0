package engine

import (
	"context"
	"testing"

	"supertrend-bot/internal/types"
)

func signalBar(close float64, sig types.Signal, changed bool) types.SignalBar {
	return types.SignalBar{
		IndicatorBar: types.IndicatorBar{
			Bar:   types.Bar{Time: monday10am, Open: close, High: close, Low: close, Close: close},
			Ready: sig != types.SignalNone,
		},
		Signal:  sig,
		Changed: changed,
	}
}

func newTestPositions(reverse, longOnly bool) *positionManager {
	return newPositionManager(2, reverse, longOnly, newStopManager(3, 2, 2, 0.05))
}

func commitAll(pm *positionManager, ps []proposal) []*types.ClosedTrade {
	var out []*types.ClosedTrade
	for _, p := range ps {
		if c := pm.commit(p); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func TestDecideNoSignal(t *testing.T) {
	pm := newTestPositions(true, false)
	if ps := pm.decide(context.Background(), "X", signalBar(100, types.SignalNone, false), nil); len(ps) != 0 {
		t.Errorf("Expected no proposals without a signal, got %d", len(ps))
	}
}

func TestDecideFlatEntersOnlyOnChange(t *testing.T) {
	pm := newTestPositions(true, false)
	ctx := context.Background()

	if ps := pm.decide(ctx, "X", signalBar(100, types.SignalBuy, false), nil); len(ps) != 0 {
		t.Errorf("Expected no entry on an unchanged signal, got %d", len(ps))
	}

	ps := pm.decide(ctx, "X", signalBar(100, types.SignalBuy, true), nil)
	if len(ps) != 1 {
		t.Fatalf("Expected 1 proposal, got %d", len(ps))
	}
	p := ps[0]
	if p.kind != actionOpen || p.side != types.SideLong || p.orderSide() != "BUY" || p.reason != ReasonEntryBuy {
		t.Errorf("Unexpected proposal: %+v", p)
	}
	if p.stop != 98 || p.target != 104 {
		t.Errorf("Expected fallback levels 98/104, got %.2f/%.2f", p.stop, p.target)
	}
	if !pm.current().IsFlat() {
		t.Error("Expected position unchanged before commit")
	}

	pm.commit(p)
	pos := pm.current()
	if pos.Side != types.SideLong || pos.EntryPrice != 100 || pos.Qty != 2 {
		t.Errorf("Expected LONG 2 at 100, got %+v", pos)
	}
}

func TestDecideSameSideHolds(t *testing.T) {
	pm := newTestPositions(true, false)
	pm.pos = types.Position{Side: types.SideLong, EntryPrice: 100, StopLoss: 95, TakeProfit: 110, Qty: 2}

	if ps := pm.decide(context.Background(), "X", signalBar(102, types.SignalBuy, true), nil); len(ps) != 0 {
		t.Errorf("Expected no proposals when already long, got %d", len(ps))
	}
}

func TestDecideReverse(t *testing.T) {
	pm := newTestPositions(true, false)
	pm.pos = types.Position{Side: types.SideLong, EntryPrice: 100, StopLoss: 90, TakeProfit: 120, Qty: 2}

	ps := pm.decide(context.Background(), "X", signalBar(104, types.SignalSell, true), nil)
	if len(ps) != 2 {
		t.Fatalf("Expected close and open, got %d", len(ps))
	}
	if ps[0].kind != actionClose || ps[0].orderSide() != "SELL" || ps[0].reason != ReasonSignalFlip {
		t.Errorf("Expected SELL close first, got %+v", ps[0])
	}
	if ps[1].kind != actionOpen || ps[1].side != types.SideShort || ps[1].orderSide() != "SELL" {
		t.Errorf("Expected short entry second, got %+v", ps[1])
	}

	closed := commitAll(pm, ps)
	if len(closed) != 1 || closed[0].PnL != 8 {
		t.Fatalf("Expected one closed trade with PnL 8, got %+v", closed)
	}
	if pm.current().Side != types.SideShort {
		t.Errorf("Expected SHORT, got %s", pm.current().Side)
	}
}

func TestDecideFlatOnly(t *testing.T) {
	pm := newTestPositions(false, false)
	pm.pos = types.Position{Side: types.SideShort, EntryPrice: 100, StopLoss: 110, TakeProfit: 80, Qty: 2}

	ps := pm.decide(context.Background(), "X", signalBar(97, types.SignalBuy, true), nil)
	if len(ps) != 1 || ps[0].kind != actionClose || ps[0].orderSide() != "BUY" {
		t.Fatalf("Expected a single BUY close, got %+v", ps)
	}
	closed := commitAll(pm, ps)
	if len(closed) != 1 || closed[0].PnL != 6 {
		t.Errorf("Expected PnL 6, got %+v", closed)
	}
	if !pm.current().IsFlat() {
		t.Errorf("Expected FLAT, got %s", pm.current().Side)
	}
}

func TestDecideLongOnlySkipsShorts(t *testing.T) {
	pm := newTestPositions(true, true)
	ctx := context.Background()

	if ps := pm.decide(ctx, "X", signalBar(100, types.SignalSell, true), nil); len(ps) != 0 {
		t.Errorf("Expected no short entry, got %d", len(ps))
	}

	pm.pos = types.Position{Side: types.SideLong, EntryPrice: 100, StopLoss: 90, TakeProfit: 120, Qty: 2}
	ps := pm.decide(ctx, "X", signalBar(99, types.SignalSell, true), nil)
	if len(ps) != 1 || ps[0].kind != actionClose {
		t.Errorf("Expected only the long close, got %+v", ps)
	}
}

func TestDecideStopLossWithoutSignalChange(t *testing.T) {
	pm := newTestPositions(true, false)
	pm.pos = types.Position{Side: types.SideLong, EntryPrice: 100, StopLoss: 95, TakeProfit: 110, Qty: 2}

	bar := signalBar(96, types.SignalBuy, false)
	bar.Low = 94
	bar.High = 111
	ps := pm.decide(context.Background(), "X", bar, nil)
	if len(ps) != 1 {
		t.Fatalf("Expected one exit, got %d", len(ps))
	}
	if ps[0].reason != ReasonStopLoss || ps[0].price != 95 {
		t.Errorf("Expected STOP_LOSS at 95, got %s at %.2f", ps[0].reason, ps[0].price)
	}

	closed := commitAll(pm, ps)
	if len(closed) != 1 || closed[0].PnL != -10 {
		t.Errorf("Expected PnL -10, got %+v", closed)
	}
}

func TestDecideTakeProfitShort(t *testing.T) {
	pm := newTestPositions(true, false)
	pm.pos = types.Position{Side: types.SideShort, EntryPrice: 100, StopLoss: 105, TakeProfit: 90, Qty: 2}

	bar := signalBar(91, types.SignalSell, false)
	bar.Low = 89
	ps := pm.decide(context.Background(), "X", bar, nil)
	if len(ps) != 1 || ps[0].reason != ReasonTakeProfit || ps[0].orderSide() != "BUY" {
		t.Fatalf("Expected BUY TAKE_PROFIT, got %+v", ps)
	}
	closed := commitAll(pm, ps)
	if closed[0].PnL != 20 {
		t.Errorf("Expected PnL 20, got %.2f", closed[0].PnL)
	}
}

func TestCommitCloseMismatchedSide(t *testing.T) {
	pm := newTestPositions(true, false)
	pm.pos = types.Position{Side: types.SideLong, EntryPrice: 100, Qty: 2}

	if c := pm.commit(proposal{kind: actionClose, side: types.SideShort, price: 90}); c != nil {
		t.Errorf("Expected no trade for a mismatched close, got %+v", c)
	}
	if pm.current().Side != types.SideLong {
		t.Error("Expected position to stay LONG")
	}
}

func TestExitAll(t *testing.T) {
	pm := newTestPositions(true, false)
	if ps := pm.exitAll(100, ReasonSessionStop, monday10am); len(ps) != 0 {
		t.Errorf("Expected nothing to exit when flat, got %d", len(ps))
	}
	pm.pos = types.Position{Side: types.SideShort, EntryPrice: 100, Qty: 2}
	ps := pm.exitAll(101, ReasonSessionStop, monday10am)
	if len(ps) != 1 || ps[0].orderSide() != "BUY" || ps[0].reason != ReasonSessionStop {
		t.Errorf("Expected BUY SESSION_STOP, got %+v", ps)
	}
}
