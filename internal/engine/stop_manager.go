package engine

import (
	"context"
	"math"

	"supertrend-bot/internal/logger"
	"supertrend-bot/internal/types"
)

const (
	ReasonStopLoss   = "STOP_LOSS"
	ReasonTakeProfit = "TAKE_PROFIT"
)

// stopManager derives stop-loss and take-profit levels for new positions and
// checks open positions against them.
type stopManager struct {
	lookback    int     // Bars used for the swing low/high stop
	fallbackPct float64 // Percent stop used when the lookback is not available
	rewardRisk  float64 // Take-profit distance as a multiple of risk
	minTick     float64 // Exchange tick size
}

func newStopManager(lookback int, fallbackPct, rewardRisk, minTick float64) *stopManager {
	return &stopManager{
		lookback:    lookback,
		fallbackPct: fallbackPct,
		rewardRisk:  rewardRisk,
		minTick:     minTick,
	}
}

// levels computes stop and target for an entry at price.
//
// Long: stop is the lowest low of the last lookback bars (the entry bar
// included), target is entry + rewardRisk*(entry-stop). Short mirrors it with
// the highest high. With fewer than lookback bars, or when the swing level
// gives no risk, the stop falls back to entry ∓ fallbackPct%.
func (sm *stopManager) levels(side types.Side, entry float64, bars []types.Bar) (stop, target float64) {
	long := side == types.SideLong
	have := len(bars) >= sm.lookback

	if have {
		recent := bars[len(bars)-sm.lookback:]
		if long {
			stop = math.Inf(1)
			for _, b := range recent {
				stop = math.Min(stop, b.Low)
			}
		} else {
			stop = math.Inf(-1)
			for _, b := range recent {
				stop = math.Max(stop, b.High)
			}
		}
	}

	risk := entry - stop
	if !long {
		risk = stop - entry
	}
	if !have || risk <= 0 {
		if long {
			stop = entry * (1 - sm.fallbackPct/100)
		} else {
			stop = entry * (1 + sm.fallbackPct/100)
		}
		risk = math.Abs(entry - stop)
	}

	if long {
		target = entry + sm.rewardRisk*risk
	} else {
		target = entry - sm.rewardRisk*risk
	}
	return roundToTick(stop, sm.minTick), roundToTick(target, sm.minTick)
}

// check evaluates an open position against a bar's range. The stop-loss is
// tested first; the take-profit is only considered when the stop was not hit.
//
// Returns:
//   - exit: price the position is closed at (the level that was crossed)
//   - reason: STOP_LOSS or TAKE_PROFIT
//   - hit: false when neither level was reached
func (sm *stopManager) check(ctx context.Context, symbol string, pos types.Position, bar types.Bar) (exit float64, reason string, hit bool) {
	switch pos.Side {
	case types.SideLong:
		if bar.Low <= pos.StopLoss {
			exit, reason, hit = pos.StopLoss, ReasonStopLoss, true
		} else if bar.High >= pos.TakeProfit {
			exit, reason, hit = pos.TakeProfit, ReasonTakeProfit, true
		}
	case types.SideShort:
		if bar.High >= pos.StopLoss {
			exit, reason, hit = pos.StopLoss, ReasonStopLoss, true
		} else if bar.Low <= pos.TakeProfit {
			exit, reason, hit = pos.TakeProfit, ReasonTakeProfit, true
		}
	}

	if hit && reason == ReasonStopLoss {
		logger.Risk(ctx, symbol, "STOP_LOSS_TRIGGERED",
			"side", pos.Side,
			"entry_price", pos.EntryPrice,
			"stop_price", pos.StopLoss,
			"bar_high", bar.High,
			"bar_low", bar.Low,
			"unrealized_pnl", realizedPnL(pos.Side == types.SideLong, pos.EntryPrice, exit, pos.Qty),
		)
	}
	return exit, reason, hit
}
