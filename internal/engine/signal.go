package engine

import (
	"fmt"

	"supertrend-bot/internal/ta"
	"supertrend-bot/internal/types"
)

// computeIndicator annotates every bar with its Supertrend value. The whole
// series is recomputed on each call so results never depend on call history.
func computeIndicator(bars []types.Bar, length int, mult float64) ([]types.IndicatorBar, error) {
	if len(bars) < length {
		return nil, fmt.Errorf("%w: have %d bars, need %d", types.ErrInsufficientData, len(bars), length)
	}
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
	}

	st := ta.Supertrend(highs, lows, closes, length, mult)
	out := make([]types.IndicatorBar, len(bars))
	for i, b := range bars {
		out[i] = types.IndicatorBar{
			Bar:       b,
			Trend:     st[i].Value,
			Direction: types.Direction(st[i].Dir),
			Ready:     st[i].Ready(),
		}
	}
	return out, nil
}

// deriveSignals maps each bar to BUY when the close is above the trend and SELL
// otherwise. Changed is set only when both this bar and the previous one carry
// a signal and the two differ.
func deriveSignals(ind []types.IndicatorBar) []types.SignalBar {
	out := make([]types.SignalBar, len(ind))
	for i, b := range ind {
		sb := types.SignalBar{IndicatorBar: b}
		if b.Ready {
			if b.Close > b.Trend {
				sb.Signal = types.SignalBuy
			} else {
				sb.Signal = types.SignalSell
			}
		}
		if i > 0 && out[i-1].Signal != types.SignalNone && sb.Signal != types.SignalNone {
			sb.Changed = sb.Signal != out[i-1].Signal
		}
		out[i] = sb
	}
	return out
}
