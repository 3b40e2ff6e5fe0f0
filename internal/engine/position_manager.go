package engine

import (
	"context"
	"time"

	"supertrend-bot/internal/types"
)

const (
	ReasonSignalFlip  = "SIGNAL_FLIP"
	ReasonSessionStop = "SESSION_STOP"
	ReasonEntryBuy    = "SUPERTREND_BUY"
	ReasonEntrySell   = "SUPERTREND_SELL"
)

type action int

const (
	actionOpen action = iota
	actionClose
)

// proposal is a position transition waiting for the broker's acknowledgement.
// Nothing changes until commit is called with it.
type proposal struct {
	kind   action
	side   types.Side // side of the position being opened or closed
	price  float64
	stop   float64
	target float64
	reason string
	at     time.Time
}

// orderSide is the exchange transaction type that carries out the proposal.
func (p proposal) orderSide() string {
	buy := (p.kind == actionOpen) == (p.side == types.SideLong)
	if buy {
		return "BUY"
	}
	return "SELL"
}

// positionManager holds the Flat/Long/Short state of one session.
type positionManager struct {
	pos      types.Position
	qty      int
	reverse  bool // open the opposite side right after a signal-flip close
	longOnly bool
	stops    *stopManager
}

func newPositionManager(qty int, reverse, longOnly bool, stops *stopManager) *positionManager {
	return &positionManager{
		pos:      types.Position{Side: types.SideFlat},
		qty:      qty,
		reverse:  reverse,
		longOnly: longOnly,
		stops:    stops,
	}
}

func (pm *positionManager) current() types.Position { return pm.pos }

// decide evaluates the latest bar and returns the transitions to attempt, in
// order. A close always precedes an open; callers stop at the first proposal
// the broker does not acknowledge.
//
// With a signal change the position follows the signal. Without one, an open
// position is checked against its stop-loss and take-profit.
func (pm *positionManager) decide(ctx context.Context, symbol string, latest types.SignalBar, bars []types.Bar) []proposal {
	if latest.Signal == types.SignalNone {
		return nil
	}
	price := latest.Close
	at := latest.Time

	if !latest.Changed {
		if pm.pos.IsFlat() {
			return nil
		}
		exit, reason, hit := pm.stops.check(ctx, symbol, pm.pos, latest.Bar)
		if !hit {
			return nil
		}
		return []proposal{{kind: actionClose, side: pm.pos.Side, price: exit, reason: reason, at: at}}
	}

	want := types.SideLong
	if latest.Signal == types.SignalSell {
		want = types.SideShort
	}

	var out []proposal
	switch pm.pos.Side {
	case want:
		return nil
	case types.SideLong, types.SideShort:
		out = append(out, proposal{kind: actionClose, side: pm.pos.Side, price: price, reason: ReasonSignalFlip, at: at})
		if !pm.reverse {
			return out
		}
	}

	if want == types.SideShort && pm.longOnly {
		return out
	}
	stop, target := pm.stops.levels(want, price, bars)
	reason := ReasonEntryBuy
	if want == types.SideShort {
		reason = ReasonEntrySell
	}
	return append(out, proposal{kind: actionOpen, side: want, price: price, stop: stop, target: target, reason: reason, at: at})
}

// exitAll proposes closing the open position at price, if there is one.
func (pm *positionManager) exitAll(price float64, reason string, at time.Time) []proposal {
	if pm.pos.IsFlat() {
		return nil
	}
	return []proposal{{kind: actionClose, side: pm.pos.Side, price: price, reason: reason, at: at}}
}

// commit applies an acknowledged proposal. Closing returns the finished trade.
func (pm *positionManager) commit(p proposal) *types.ClosedTrade {
	switch p.kind {
	case actionOpen:
		pm.pos = types.Position{
			Side:       p.side,
			EntryPrice: p.price,
			StopLoss:   p.stop,
			TakeProfit: p.target,
			Qty:        pm.qty,
			OpenedAt:   p.at,
		}
		return nil
	case actionClose:
		if pm.pos.IsFlat() || pm.pos.Side != p.side {
			return nil
		}
		closed := &types.ClosedTrade{
			Side:       pm.pos.Side,
			Qty:        pm.pos.Qty,
			EntryPrice: pm.pos.EntryPrice,
			ExitPrice:  p.price,
			PnL:        realizedPnL(pm.pos.Side == types.SideLong, pm.pos.EntryPrice, p.price, pm.pos.Qty),
			Reason:     p.reason,
			OpenedAt:   pm.pos.OpenedAt,
			ClosedAt:   p.at,
		}
		pm.pos = types.Position{Side: types.SideFlat}
		return closed
	}
	return nil
}
